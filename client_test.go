package mega

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(WithAPIURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestExecuteRetriesEagainThenSucceeds(t *testing.T) {
	var calls int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n <= 2 {
			w.Write([]byte("[-3]"))
			return
		}
		body, _ := json.Marshal([]GetAttributesResponse{{Size: 42, At: "abc", Msd: 0}})
		w.Write(body)
	})

	responses, err := client.Execute(context.Background(), []Command{NewGetAttributesCommand("pid", "", false)}, nil)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	data, err := responses[0].Into()
	require.NoError(t, err)
	attrs, ok := data.(GetAttributesResponse)
	require.True(t, ok)
	assert.Equal(t, uint64(42), attrs.Size)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestExecuteSurfacesEagainAfterRetriesExhausted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[-3]"))
	})

	responses, err := client.Execute(context.Background(), []Command{NewFetchNodesCommand(false)}, nil)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	_, err = responses[0].Into()
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, EAGAIN, apiErr.Code)
}

func TestExecuteSurfacesNonEagainErrorImmediately(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[-9]"))
	})

	responses, err := client.Execute(context.Background(), []Command{NewGetAttributesCommand("pid", "", false)}, nil)
	require.NoError(t, err)

	_, err = responses[0].Into()
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ENOENT, apiErr.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestExecuteRejectsResponseLengthMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal([]GetAttributesResponse{{Size: 1}, {Size: 2}})
		w.Write(body)
	})

	_, err := client.Execute(context.Background(), []Command{NewGetAttributesCommand("pid", "", false)}, nil)
	require.Error(t, err)
	var shapeErr *ResponseShapeError
	assert.ErrorAs(t, err, &shapeErr)
}
