package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	up   Checker = func(context.Context) error { return nil }
	down Checker = func(context.Context) error { return errors.New("connection refused") }
)

func TestCheck_Aggregation(t *testing.T) {
	tests := []struct {
		name        string
		critical    map[string]Checker
		nonCritical map[string]Checker
		want        Status
	}{
		{"no checks", nil, nil, StatusUp},
		{"all up", map[string]Checker{"api": up, "storage": up}, map[string]Checker{"kafka": up}, StatusUp},
		{"critical down", map[string]Checker{"api": down, "storage": up}, nil, StatusDown},
		{"non-critical down", map[string]Checker{"api": up}, map[string]Checker{"kafka": down}, StatusDegraded},
		{"both down", map[string]Checker{"api": down}, map[string]Checker{"kafka": down}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for name, c := range tt.critical {
				h.RegisterCritical(name, c)
			}
			for name, c := range tt.nonCritical {
				h.RegisterNonCritical(name, c)
			}

			res := h.Check(context.Background())
			assert.Equal(t, tt.want, res.Status)
			assert.Len(t, res.Checks, len(tt.critical)+len(tt.nonCritical))
			assert.False(t, res.Timestamp.IsZero())
		})
	}
}

func TestCheck_ResultDetails(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("storage", up)
	h.RegisterNonCritical("kafka", down)

	res := h.Check(context.Background())
	assert.Equal(t, []string{"kafka", "storage"}, res.Names())

	kafka := res.Checks["kafka"]
	assert.Equal(t, StatusDown, kafka.Status)
	assert.False(t, kafka.Critical)
	assert.Equal(t, "connection refused", kafka.Error)

	storage := res.Checks["storage"]
	assert.Equal(t, StatusUp, storage.Status)
	assert.True(t, storage.Critical)
	assert.Empty(t, storage.Error)
}

func TestRegister_IsCriticalAndReplaces(t *testing.T) {
	h := NewHandler()
	h.Register("api", up)
	h.Register("api", down)

	res := h.Check(context.Background())
	require.Len(t, res.Checks, 1)
	assert.True(t, res.Checks["api"].Critical)
	assert.Equal(t, StatusDown, res.Status)
}

func TestCheck_HonoursTimeout(t *testing.T) {
	h := NewHandler()
	h.timeout = 20 * time.Millisecond
	h.RegisterCritical("api", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	res := h.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusDown, res.Status)
	assert.Contains(t, res.Checks["api"].Error, "deadline exceeded")
}

func serve(t *testing.T, handler http.HandlerFunc) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var res Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return rec.Code, res
}

func TestLivenessHandler(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("api", down)

	code, res := serve(t, h.LivenessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, res.Status)
	assert.Empty(t, res.Checks)
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		register   func(h *Handler)
		wantCode   int
		wantStatus Status
	}{
		{"ready", func(h *Handler) { h.RegisterCritical("catalog", up) }, http.StatusOK, StatusUp},
		{"degraded stays ready", func(h *Handler) { h.RegisterNonCritical("kafka", down) }, http.StatusOK, StatusDegraded},
		{"critical down", func(h *Handler) { h.RegisterCritical("catalog", down) }, http.StatusServiceUnavailable, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			tt.register(h)
			code, res := serve(t, h.ReadinessHandler())
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, res.Status)
		})
	}
}
