package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateResult_Diagnostics(t *testing.T) {
	valid := `[{"range":{"start":{"line":0,"character":1},"end":{"line":0,"character":4}},"message":"bad","severity":1,"code":"E1"}]`
	require.NoError(t, ValidateResult(MethodDoValidation, []byte(valid)))
	require.NoError(t, ValidateResult(MethodDoValidation, []byte("null")))
	require.NoError(t, ValidateResult(MethodDoValidation, nil))

	tests := []struct {
		name  string
		input string
		field string
	}{
		{"not array", `{"a":1}`, ""},
		{"missing line", `[{"range":{"start":{"character":1},"end":{"line":0,"character":4}},"message":"x","severity":1}]`, "[0].range.start.line"},
		{"message not string", `[{"range":{"start":{"line":0,"character":1},"end":{"line":0,"character":4}},"message":3,"severity":1}]`, "[0].message"},
		{"second element bad", `[{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":0}},"message":"","severity":2},{"range":{}}]`, "[1].range.start.line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResult(MethodDoValidation, []byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidResponse))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateResult_Colorization(t *testing.T) {
	valid := `[{"classifications":[{"kind":3,"start":0,"length":5}],"absoluteStart":0,"absoluteEnd":10}]`
	require.NoError(t, ValidateResult(MethodDoColorization, []byte(valid)))

	bad := `[{"classifications":[{"kind":"x","start":0,"length":5}],"absoluteStart":0,"absoluteEnd":10}]`
	err := ValidateResult(MethodDoColorization, []byte(bad))
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "[0].classifications[0].kind", verr.Field)
}

func TestValidateResult_Completion(t *testing.T) {
	require.NoError(t, ValidateResult(MethodDoComplete, []byte(`{"isIncomplete":false,"items":[{"label":"a"}]}`)))
	require.NoError(t, ValidateResult(MethodDoComplete, []byte(`{"isIncomplete":true}`)))
	require.Error(t, ValidateResult(MethodDoComplete, []byte(`[]`)))
	require.Error(t, ValidateResult(MethodDoComplete, []byte(`{"items":[{"label":1}]}`)))
}

func TestValidateResult_Malformed(t *testing.T) {
	err := ValidateResult(MethodGetSchema, []byte(`{"a":`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	require.Error(t, ValidateResult(MethodGetSchema, []byte(`"str"`)))
	require.NoError(t, ValidateResult(MethodGetSchema, []byte(`{"databases":[]}`)))
}

func TestDiagnostic_Validate(t *testing.T) {
	d := Diagnostic{
		Range:    Range{Start: Position{Line: 1, Character: 2}, End: Position{Line: 1, Character: 5}},
		Message:  "m",
		Severity: SeverityWarning,
	}
	require.NoError(t, d.Validate())

	d.Severity = 0
	assert.Error(t, d.Validate())

	d.Severity = SeverityHint
	d.Range.End = Position{Line: 0, Character: 9}
	assert.Error(t, d.Validate())
}

func TestColorizationRange_Validate(t *testing.T) {
	c := ColorizationRange{AbsoluteStart: 2, AbsoluteEnd: 8, Classifications: []Classification{{Kind: 1, Start: 2, Length: 3}}}
	require.NoError(t, c.Validate())

	c.AbsoluteEnd = 1
	assert.Error(t, c.Validate())

	c.AbsoluteEnd = 8
	c.Classifications[0].Length = -1
	assert.Error(t, c.Validate())
}

func TestSchema_JSON(t *testing.T) {
	var s Schema
	assert.True(t, s.IsZero())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	require.NoError(t, s.UnmarshalJSON([]byte(`{"db":"x"}`)))
	assert.False(t, s.IsZero())
	assert.True(t, s.Equal(NewSchema([]byte(` {"db":"x"} `))))
}

func TestDiagnosticSeverity_String(t *testing.T) {
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "hint", SeverityHint.String())
	assert.Equal(t, "unknown", DiagnosticSeverity(9).String())
}
