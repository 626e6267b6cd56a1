package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetRetries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantCode  int
	}{
		{"ok first try", []int{200}, 1, 0},
		{"retries server error", []int{503, 502, 200}, 3, 0},
		{"client error is permanent", []int{404, 200}, 1, 404},
		{"gives up after max retries", []int{500, 500, 500, 500}, 3, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.statuses[n-1])
				io.WriteString(w, "body")
			}))
			defer srv.Close()

			c := NewClient(ClientOptions{
				Timeout:         time.Second,
				RequestsPerSec:  100,
				MaxRetries:      2,
				MaxRetryTimeout: 5 * time.Second,
			})
			resp, err := c.Get(context.Background(), srv.URL, http.Header{"Accept": {"text/plain"}})

			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				resp.Body.Close()
				return
			}
			if StatusCode(err) != tt.wantCode {
				t.Errorf("status = %d (%v), want %d", StatusCode(err), err, tt.wantCode)
			}
		})
	}
}
