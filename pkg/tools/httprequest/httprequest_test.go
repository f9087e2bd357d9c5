package httprequest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTool_RequiresURL(t *testing.T) {
	_, err := NewTool(map[string]any{})
	require.ErrorIs(t, err, ErrURLInvalid)
}

func TestNewTool_Defaults(t *testing.T) {
	tool, err := NewTool(map[string]any{"url": "http://example.com"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, tool.Method)
	assert.Equal(t, 1, tool.Retry.Attempts)
}

func TestTool_Run_JSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	tool, err := NewTool(map[string]any{"url": server.URL})
	require.NoError(t, err)

	result, err := tool.Run(context.Background(), nil)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resultMap["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, resultMap["body"])
}

func TestTool_Run_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write([]byte(`"recovered"`))
	}))
	defer server.Close()

	tool, err := NewTool(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": float64(2), "delay": float64(0)},
	})
	require.NoError(t, err)

	result, err := tool.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "recovered", resultMap["body"])
}

func TestTool_Run_ClientErrorIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tool, err := NewTool(map[string]any{"url": server.URL})
	require.NoError(t, err)

	_, err = tool.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
