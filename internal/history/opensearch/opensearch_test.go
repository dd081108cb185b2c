package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/extbox/internal/history"
	"github.com/loykin/extbox/internal/module"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		body   []byte
		path   string
		method string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "extbox-history")
	e := history.NewEvent(history.EventSnapshot, "network", time.Now())
	e.Data = module.DataPoints{}.Add("network.download", "1.2 MB/s")
	require.NoError(t, sink.Send(context.Background(), e))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/extbox-history/_doc/"+e.ID, path)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "snapshot", got["type"])
	assert.Equal(t, "network", got["module"])
	assert.Equal(t, map[string]any{"network.download": "1.2 MB/s"}, got["data"])
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.NewEvent(history.EventAlert, "battery", time.Now()))
	assert.ErrorContains(t, err, "status 400")
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	err := New("http://127.0.0.1:1", "idx").Send(context.Background(), history.NewEvent(history.EventAlert, "battery", time.Now()))
	assert.Error(t, err)
}
