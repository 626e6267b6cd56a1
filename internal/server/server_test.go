package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type fakeDB struct{ err error }

func (f fakeDB) PingContext(context.Context) error { return f.err }

func TestRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total", Help: "test"}))

	tests := []struct {
		name     string
		db       Pinger
		path     string
		wantCode int
		wantBody string
	}{
		{"healthy", fakeDB{}, "/healthz", http.StatusOK, `"status":"ok"`},
		{"db down", fakeDB{err: errors.New("connection refused")}, "/healthz", http.StatusServiceUnavailable, "connection refused"},
		{"state", fakeDB{}, "/state", http.StatusOK, `"instrument":"USDKRW"`},
		{"metrics", fakeDB{}, "/metrics", http.StatusOK, "test_counter_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{
				DB:       tt.db,
				Gatherer: reg,
				State:    func() any { return map[string]string{"instrument": "USDKRW"} },
				Logger:   zerolog.Nop(),
			})

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %q missing %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
