package analysis

// Classification kinds reported by the engine.
const (
	KindPlainText = iota
	KindComment
	KindPunctuation
	KindDirective
	KindLiteral
	KindStringLiteral
	KindType
	KindColumn
	KindTable
	KindDatabase
	KindFunction
	KindParameter
	KindVariable
	KindIdentifier
	KindClientParameter
	KindQueryParameter
	KindScalarOperator
	KindMathOperator
	KindQueryOperator
	KindCommand
	KindKeyword
	KindMaterializedView
	KindSchemaMember
	KindSignatureParameter
	KindOption
)

var kindClasses = [...]string{
	KindPlainText:          "",
	KindComment:            "comment",
	KindPunctuation:        "punctuation",
	KindDirective:          "directive",
	KindLiteral:            "literal",
	KindStringLiteral:      "string",
	KindType:               "type",
	KindColumn:             "column",
	KindTable:              "table",
	KindDatabase:           "database",
	KindFunction:           "function",
	KindParameter:          "parameter",
	KindVariable:           "variable",
	KindIdentifier:         "identifier",
	KindClientParameter:    "client-parameter",
	KindQueryParameter:     "query-parameter",
	KindScalarOperator:     "operator",
	KindMathOperator:       "math-operator",
	KindQueryOperator:      "query-operator",
	KindCommand:            "command",
	KindKeyword:            "keyword",
	KindMaterializedView:   "materialized-view",
	KindSchemaMember:       "schema-member",
	KindSignatureParameter: "signature-parameter",
	KindOption:             "option",
}

// DefaultClass maps a classification kind to its decoration class. Plain
// text and unknown kinds are not drawn.
func DefaultClass(kind int) string {
	if kind < 0 || kind >= len(kindClasses) {
		return ""
	}
	return kindClasses[kind]
}
