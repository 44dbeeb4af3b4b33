package protocol

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ValidateResult checks the raw result of an engine call against the
// message schema of method before it is decoded. Only plain data crosses
// the worker boundary, so shape errors are caught here rather than being
// discovered as zero values later.
func ValidateResult(method string, raw []byte) error {
	if len(raw) == 0 {
		raw = []byte("null")
	}
	if !gjson.ValidBytes(raw) {
		return &ValidationError{Method: method, Reason: "malformed JSON"}
	}
	res := gjson.ParseBytes(raw)

	switch method {
	case MethodDoValidation:
		return validateArray(method, res, validateDiagnosticShape)
	case MethodDoColorization:
		return validateArray(method, res, validateColorizationShape)
	case MethodDoComplete:
		return validateCompletionShape(method, res)
	case MethodGetSchema, MethodNormalizeSchema:
		if res.Type != gjson.Null && !res.IsObject() && !res.IsArray() {
			return &ValidationError{Method: method, Reason: "schema must be an object, array or null"}
		}
		return nil
	default:
		return nil
	}
}

func validateArray(method string, res gjson.Result, elem func(method, prefix string, v gjson.Result) error) error {
	if res.Type == gjson.Null {
		return nil
	}
	if !res.IsArray() {
		return &ValidationError{Method: method, Reason: "expected array"}
	}
	var err error
	i := 0
	res.ForEach(func(_, v gjson.Result) bool {
		err = elem(method, fmt.Sprintf("[%d]", i), v)
		i++
		return err == nil
	})
	return err
}

func requireNumbers(method, prefix string, v gjson.Result, paths ...string) error {
	for _, p := range paths {
		if v.Get(p).Type != gjson.Number {
			return &ValidationError{Method: method, Field: prefix + "." + p, Reason: "expected number"}
		}
	}
	return nil
}

func validateDiagnosticShape(method, prefix string, v gjson.Result) error {
	if !v.IsObject() {
		return &ValidationError{Method: method, Field: prefix, Reason: "expected object"}
	}
	if err := requireNumbers(method, prefix, v,
		"range.start.line", "range.start.character",
		"range.end.line", "range.end.character",
		"severity",
	); err != nil {
		return err
	}
	if v.Get("message").Type != gjson.String {
		return &ValidationError{Method: method, Field: prefix + ".message", Reason: "expected string"}
	}
	return nil
}

func validateColorizationShape(method, prefix string, v gjson.Result) error {
	if !v.IsObject() {
		return &ValidationError{Method: method, Field: prefix, Reason: "expected object"}
	}
	if err := requireNumbers(method, prefix, v, "absoluteStart", "absoluteEnd"); err != nil {
		return err
	}
	return validateArray(method, v.Get("classifications"), func(method, inner string, c gjson.Result) error {
		return requireNumbers(method, prefix+".classifications"+inner, c, "kind", "start", "length")
	})
}

func validateCompletionShape(method string, res gjson.Result) error {
	if !res.IsObject() {
		return &ValidationError{Method: method, Reason: "expected object"}
	}
	return validateArray(method, res.Get("items"), func(method, prefix string, item gjson.Result) error {
		if item.Get("label").Type != gjson.String {
			return &ValidationError{Method: method, Field: "items" + prefix + ".label", Reason: "expected string"}
		}
		return nil
	})
}

// Validate checks field ranges of a decoded diagnostic.
func (d Diagnostic) Validate() error {
	if d.Severity < SeverityError || d.Severity > SeverityHint {
		return &ValidationError{Method: MethodDoValidation, Field: "severity", Reason: fmt.Sprintf("out of range: %d", d.Severity)}
	}
	if d.Range.Start.Line < 0 || d.Range.Start.Character < 0 {
		return &ValidationError{Method: MethodDoValidation, Field: "range.start", Reason: "negative position"}
	}
	if positionLess(d.Range.End, d.Range.Start) {
		return &ValidationError{Method: MethodDoValidation, Field: "range", Reason: "end before start"}
	}
	return nil
}

// Validate checks field ranges of a decoded colorization range.
func (c ColorizationRange) Validate() error {
	if c.AbsoluteStart < 0 || c.AbsoluteEnd < c.AbsoluteStart {
		return &ValidationError{Method: MethodDoColorization, Field: "absoluteStart", Reason: "invalid region"}
	}
	for _, cl := range c.Classifications {
		if cl.Start < 0 || cl.Length < 0 {
			return &ValidationError{Method: MethodDoColorization, Field: "classifications", Reason: "negative offset or length"}
		}
	}
	return nil
}

func positionLess(a, b Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Character < b.Character
}
