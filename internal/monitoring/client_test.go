package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cragr/opsstatus-agent/internal/apperrors"
	"github.com/cragr/opsstatus-agent/internal/logging"
	"github.com/cragr/opsstatus-agent/internal/models"
	"github.com/cragr/opsstatus-agent/internal/upstream"
)

func newTestClient() *Client {
	httpClient := upstream.NewClient(5*time.Second, "opsstatus-agent/test", logging.Discard())
	httpClient.RetryConfig.MaxAttempts = 1
	return NewClient(httpClient, logging.Discard())
}

func TestClient_Search(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantLen  int
	}{
		{"wrapped results", `{"results":[{"id":"a1","severity":"critical"},{"id":"a2"}]}`, 2},
		{"bare array", `[{"id":"a1"}]`, 1},
		{"empty wrapped", `{"results":[]}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got searchRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/v1/search" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("decode body: %v", err)
				}
				w.Write([]byte(tt.response))
			}))
			defer server.Close()

			rows, err := newTestClient().Search(context.Background(),
				models.IntegrationConfig{BaseURL: server.URL + "/"},
				models.Credentials{Username: "u", Password: "p"},
				"alerts | where status == 'open'")
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(rows) != tt.wantLen {
				t.Errorf("len(rows) = %d, want %d", len(rows), tt.wantLen)
			}
			if got.Query != "alerts | where status == 'open'" {
				t.Errorf("query = %q", got.Query)
			}
		})
	}
}

func TestClient_Search_Malformed(t *testing.T) {
	for _, body := range []string{`{"data":[]}`, `"nope"`, ``, `[1,2]`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		_, err := newTestClient().Search(context.Background(), models.IntegrationConfig{BaseURL: server.URL}, models.Credentials{}, "q")
		if !errors.Is(err, apperrors.ErrUpstreamRejected) {
			t.Errorf("body %q: error = %v, want rejected", body, err)
		}
		server.Close()
	}
}

func TestClient_Search_NotConfigured(t *testing.T) {
	_, err := newTestClient().Search(context.Background(), models.IntegrationConfig{}, models.Credentials{}, "q")
	if !errors.Is(err, apperrors.ErrConfigurationMissing) {
		t.Errorf("error = %v, want ErrConfigurationMissing", err)
	}
}
