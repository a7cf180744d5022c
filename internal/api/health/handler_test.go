package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
		},
		{
			name:       "all healthy",
			checkers:   []Checker{NewPingChecker("redis", stubPinger{})},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"redis": "ok"},
		},
		{
			name: "one failing",
			checkers: []Checker{
				NewPingChecker("redis", stubPinger{}),
				NewPingChecker("postgres", stubPinger{err: errors.New("connection refused")}),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"redis": "ok", "postgres": "connection refused"},
		},
		{
			name:       "unconfigured",
			checkers:   []Checker{NewPingChecker("redis", nil), NewDBChecker("sqlite", nil)},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"redis": "redis not configured", "sqlite": "database not initialized"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for _, c := range tt.checkers {
				h.RegisterChecker(c)
			}
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest("GET", "/health/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}

func TestLiveAndHealth(t *testing.T) {
	h := NewHandler()
	for path, fn := range map[string]http.HandlerFunc{"/health": h.Health, "/health/live": h.Live} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}
