package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Recommend(t *testing.T) {
	var got recommendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"recommendation":"Rest and fluids."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	out, err := c.Recommend(context.Background(), "Patient: Bob", "Treatment?")
	require.NoError(t, err)

	assert.Equal(t, "Rest and fluids.", out)
	assert.Equal(t, recommendRequest{PatientEHR: "Patient: Bob", ClinicalQuestion: "Treatment?"}, got)
}

func TestClient_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{"error body", http.StatusInternalServerError, `{"error":"Failed to initialize with EHR"}`, "Failed to initialize with EHR"},
		{"bad request", http.StatusBadRequest, `{"error":"Missing required fields"}`, "Missing required fields"},
		{"html error", http.StatusBadGateway, `<html>bad gateway</html>`, "status 502"},
		{"ok with error", http.StatusOK, `{"error":"model offline"}`, "model offline"},
		{"ok not json", http.StatusOK, `plain text`, "decode response"},
		{"ok empty", http.StatusOK, `{}`, "empty recommendation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Recommend(context.Background(), "ehr", "q")
			require.ErrorIs(t, err, ErrUpstream)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond).Recommend(context.Background(), "ehr", "q")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, time.Minute).Recommend(ctx, "ehr", "q")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Recommend(context.Background(), "ehr", "q")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClient_WithHTTPClient(t *testing.T) {
	hc := &http.Client{}
	c := NewClient("http://example.invalid", time.Second, WithHTTPClient(hc))
	assert.Same(t, hc, c.httpClient)
}
