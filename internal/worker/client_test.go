package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
	"github.com/dshills/langsync/internal/worker"
	"github.com/dshills/langsync/internal/worker/workertest"
)

const uri protocol.DocumentURI = "file:///query.kql"

func spawnInProcess(t *testing.T, eng *workertest.Engine) worker.Worker {
	t.Helper()
	s := &worker.InProcessSpawner{
		NewEngine: func(context.Context) (worker.Engine, error) { return eng, nil },
		Logger:    zaptest.NewLogger(t),
	}
	w, err := s.Spawn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		w.Close(ctx)
	})
	return w
}

func TestClient_Methods(t *testing.T) {
	ctx := context.Background()
	eng := workertest.NewEngine()
	wantDiags := []protocol.Diagnostic{{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 4},
			End:   protocol.Position{Line: 0, Character: 9},
		},
		Message:  "unknown table",
		Severity: protocol.SeverityError,
		Code:     "KS204",
	}}
	wantRanges := []protocol.ColorizationRange{{
		Classifications: []protocol.Classification{{Kind: 3, Start: 0, Length: 5}},
		AbsoluteStart:   0,
		AbsoluteEnd:     5,
	}}
	wantList := protocol.CompletionList{IsIncomplete: true, Items: []protocol.CompletionItem{{Label: "where"}}}

	eng.Diagnostics = func(context.Context, protocol.DocumentURI, []protocol.Interval) ([]protocol.Diagnostic, error) {
		return wantDiags, nil
	}
	eng.Colorization = func(context.Context, protocol.DocumentURI, []protocol.Interval) ([]protocol.ColorizationRange, error) {
		return wantRanges, nil
	}
	eng.Completion = func(context.Context, protocol.DocumentURI, protocol.Position) (protocol.CompletionList, error) {
		return wantList, nil
	}
	eng.Normalize = func(raw protocol.Schema, connectionID, contextID string) (protocol.Schema, error) {
		return protocol.NewSchema([]byte(`{"cluster":"` + connectionID + `","db":"` + contextID + `"}`)), nil
	}
	w := spawnInProcess(t, eng)

	diags, err := w.DoValidation(ctx, uri, []protocol.Interval{{Start: 1, End: 2}})
	require.NoError(t, err)
	if diff := cmp.Diff(wantDiags, diags); diff != "" {
		t.Errorf("DoValidation mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, [][]protocol.Interval{{{Start: 1, End: 2}}}, eng.Intervals(protocol.MethodDoValidation))

	ranges, err := w.DoColorization(ctx, uri, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(wantRanges, ranges); diff != "" {
		t.Errorf("DoColorization mismatch (-want +got):\n%s", diff)
	}
	// A full request arrives as an empty list.
	got := eng.Intervals(protocol.MethodDoColorization)
	require.Len(t, got, 1)
	assert.Empty(t, got[0])

	list, err := w.DoComplete(ctx, uri, protocol.Position{Line: 0, Character: 1})
	require.NoError(t, err)
	if diff := cmp.Diff(wantList, list); diff != "" {
		t.Errorf("DoComplete mismatch (-want +got):\n%s", diff)
	}

	normalized, err := w.NormalizeSchema(ctx, protocol.NewSchema([]byte(`{}`)), "help", "Samples")
	require.NoError(t, err)
	assert.JSONEq(t, `{"cluster":"help","db":"Samples"}`, string(normalized.Raw))

	require.NoError(t, w.SetSchema(ctx, normalized))
	schema, err := w.GetSchema(ctx)
	require.NoError(t, err)
	assert.True(t, normalized.Equal(schema))

	require.NoError(t, w.SyncDocument(ctx, document.Snapshot{URI: uri, Version: 4, Text: "T | take 1"}))
	snap, ok := eng.Document(uri)
	require.True(t, ok)
	assert.Equal(t, document.Version(4), snap.Version)
	assert.Equal(t, "T | take 1", snap.Text)
}

func TestClient_EmptySchemaRoundTrip(t *testing.T) {
	w := spawnInProcess(t, workertest.NewEngine())

	schema, err := w.GetSchema(context.Background())
	require.NoError(t, err)
	assert.True(t, schema.IsZero())
}

func TestClient_EngineErrorPropagates(t *testing.T) {
	eng := workertest.NewEngine()
	eng.Completion = func(context.Context, protocol.DocumentURI, protocol.Position) (protocol.CompletionList, error) {
		return protocol.CompletionList{}, errors.New("symbol table unavailable")
	}
	w := spawnInProcess(t, eng)

	_, err := w.DoComplete(context.Background(), uri, protocol.Position{})
	var rpcErr *protocol.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, protocol.CodeEngineError, rpcErr.Code)
	assert.Equal(t, "symbol table unavailable", rpcErr.Message)
}

func TestClient_RejectsInvalidDiagnostic(t *testing.T) {
	eng := workertest.NewEngine()
	eng.Diagnostics = func(context.Context, protocol.DocumentURI, []protocol.Interval) ([]protocol.Diagnostic, error) {
		return []protocol.Diagnostic{{Message: "no severity"}}, nil
	}
	w := spawnInProcess(t, eng)

	_, err := w.DoValidation(context.Background(), uri, nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidResponse)
}

func TestClient_CloseStopsEngine(t *testing.T) {
	eng := workertest.NewEngine()
	s := &worker.InProcessSpawner{
		NewEngine: func(context.Context) (worker.Engine, error) { return eng, nil },
	}
	w, err := s.Spawn(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Close(ctx))
	assert.True(t, eng.Closed())
	require.NoError(t, w.Close(ctx), "second close is a no-op")

	_, err = w.GetSchema(context.Background())
	assert.ErrorIs(t, err, worker.ErrShutdown)
}
