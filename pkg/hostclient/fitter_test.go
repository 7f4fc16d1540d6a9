package hostclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/session-governor/pkg/fitter"
)

func TestCreateSession_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body createSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "recover this", body.Prompt)
		assert.True(t, body.AutoApprove)
		assert.Equal(t, "governor-1", body.Host)
		assert.Equal(t, 9090, body.Port)

		_ = json.NewEncoder(w).Encode(createSessionResponse{
			SessionID: "fitter-1", Success: true, Cost: 0.05, DurationMS: 1200,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	resp, err := c.CreateSession(t.Context(), fitter.SessionRequest{
		Prompt: "recover this", AgentMode: "code", AutoApprove: true, Host: "governor-1", Port: 9090,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "fitter-1", resp.SessionID)
	assert.Equal(t, int64(1200), resp.DurationMS)
}

func TestCreateSession_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.CreateSession(t.Context(), fitter.SessionRequest{Prompt: "x"})
	assert.Error(t, err)
}
