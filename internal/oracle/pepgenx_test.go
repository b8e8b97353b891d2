package oracle

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

func newPepGenXServer(t *testing.T, tokenStatus int, modelStatus int, reply string) (*httptest.Server, *int32) {
	t.Helper()
	var tokenCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "id", r.Form.Get("client_id"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))
		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "team", r.Header.Get("team_id"))
		assert.Equal(t, "proj", r.Header.Get("project_id"))
		assert.Equal(t, "pk", r.Header.Get("x-pepgenx-apikey"))

		var req pepgenxRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Prompt, "[User]: hello")

		if modelStatus != http.StatusOK {
			w.WriteHeader(modelStatus)
			_, _ = w.Write([]byte("nope"))
			return
		}
		_ = json.NewEncoder(w).Encode(pepgenxResponse{Response: reply})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func newTestPepGenX(t *testing.T, srv *httptest.Server) *PepGenXClient {
	t.Helper()
	c, err := NewPepGenXClient(PepGenXConfig{
		TokenURL:     srv.URL + "/token",
		ModelURL:     srv.URL + "/generate",
		ClientID:     "id",
		ClientSecret: "secret",
		APIKey:       "pk",
		TeamID:       "team",
		ProjectID:    "proj",
		HTTPClient:   srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestPepGenX_Success(t *testing.T) {
	srv, tokenCalls := newPepGenXServer(t, http.StatusOK, http.StatusOK, "generated")
	c := newTestPepGenX(t, srv)

	for i := 0; i < 2; i++ {
		got, err := c.Complete(context.Background(), "be terse", "hello")
		require.NoError(t, err)
		assert.Equal(t, "generated", got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls), "token is cached")
}

func TestPepGenX_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		tokenStatus int
		modelStatus int
		reply       string
		fatal       bool
	}{
		{name: "rate limited", tokenStatus: 200, modelStatus: 429, fatal: false},
		{name: "server error", tokenStatus: 200, modelStatus: 502, fatal: false},
		{name: "forbidden", tokenStatus: 200, modelStatus: 403, fatal: true},
		{name: "token rejected", tokenStatus: 401, modelStatus: 200, fatal: true},
		{name: "empty response", tokenStatus: 200, modelStatus: 200, reply: "  ", fatal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newPepGenXServer(t, tt.tokenStatus, tt.modelStatus, tt.reply)
			c := newTestPepGenX(t, srv)

			_, err := c.Complete(context.Background(), "sys", "hello")
			require.Error(t, err)
			assert.Equal(t, tt.fatal, IsFatal(err), "err: %v", err)
			assert.Equal(t, !tt.fatal, IsTransient(err), "err: %v", err)
		})
	}
}

func TestNewPepGenXClient_RequiresCredentials(t *testing.T) {
	_, err := NewPepGenXClient(PepGenXConfig{TokenURL: "x", ModelURL: "y"})
	assert.True(t, IsFatal(err))

	_, err = NewPepGenXClient(PepGenXConfig{ClientID: "a", ClientSecret: "b"})
	assert.True(t, IsFatal(err))
}

func TestBuildGatewayPrompt(t *testing.T) {
	assert.Equal(t, "u", buildGatewayPrompt("", "u"))
	assert.Equal(t, "[System]: s\n[User]: u\n", buildGatewayPrompt("s", "u"))
}
