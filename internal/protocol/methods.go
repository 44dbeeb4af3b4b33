package protocol

// Engine method names as they appear on the worker transport.
const (
	MethodDoValidation    = "doValidation"
	MethodDoColorization  = "doColorization"
	MethodDoComplete      = "doComplete"
	MethodSetSchema       = "setSchema"
	MethodGetSchema       = "getSchema"
	MethodNormalizeSchema = "normalizeSchema"
	MethodSyncDocument    = "syncDocument"
	MethodShutdown        = "shutdown"
)

// IntervalParams are the parameters of doValidation and doColorization.
// An empty Intervals slice requests a whole-document recomputation.
type IntervalParams struct {
	URI       DocumentURI `json:"uri"`
	Intervals []Interval  `json:"intervals"`
}

// CompletionParams are the parameters of doComplete.
type CompletionParams struct {
	URI      DocumentURI `json:"uri"`
	Position Position    `json:"position"`
}

// NormalizeSchemaParams are the parameters of normalizeSchema.
type NormalizeSchemaParams struct {
	Raw          Schema `json:"raw"`
	ConnectionID string `json:"connectionId"`
	ContextID    string `json:"contextId"`
}

// SyncDocumentParams push a document's text into the engine's mirror.
type SyncDocumentParams struct {
	URI     DocumentURI `json:"uri"`
	Version int64       `json:"version"`
	Text    string      `json:"text"`
}
