package worker

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, &Request{JSONRPC: jsonrpcVersion, ID: 3, Method: "getSchema"}))
	assert.True(t, strings.HasPrefix(buf.String(), "Content-Length: "))

	body, err := readFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"method":"getSchema"}`, string(body))
}

func TestReadFrame_Headers(t *testing.T) {
	msg := "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\n" +
		"content-length: 2\r\n\r\n{}"
	body, err := readFrame(bufio.NewReader(strings.NewReader(msg)))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}

func TestReadFrame_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing length", "Content-Type: x\r\n\r\n{}"},
		{"bad length", "Content-Length: abc\r\n\r\n{}"},
		{"short body", "Content-Length: 10\r\n\r\n{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readFrame(bufio.NewReader(strings.NewReader(tt.in)))
			assert.Error(t, err)
		})
	}

	_, err := readFrame(bufio.NewReader(strings.NewReader("")))
	assert.True(t, errors.Is(err, io.EOF))
}
