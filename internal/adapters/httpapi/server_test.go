package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jose-valero/afkmute-bot/internal/app/service"
)

type stubProbe bool

func (p stubProbe) Ready() bool { return bool(p) }

type stubSweeper struct {
	mu    sync.Mutex
	swept []string
	err   error
}

func (s *stubSweeper) Sweep(_ context.Context, guildID string) (service.ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swept = append(s.swept, guildID)
	return service.ReconcileReport{GuildID: guildID, Checked: 2, Cleared: 1}, s.err
}

func (s *stubSweeper) SweepAll(ctx context.Context, guildIDs []string) ([]service.ReconcileReport, error) {
	var reps []service.ReconcileReport
	for _, g := range guildIDs {
		rep, _ := s.Sweep(ctx, g)
		reps = append(reps, rep)
	}
	return reps, s.err
}

func newTestServer(sw *stubSweeper, ready bool) *Server {
	return New("s3cret", sw, stubProbe(ready), func() []string { return []string{"g1", "g2"} }, zap.NewNop())
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubSweeper{}, true)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Ready)
	assert.Positive(t, body.Goroutines)
}

func TestHealth_NotReady(t *testing.T) {
	srv := newTestServer(&stubSweeper{}, false)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReconcile_RequiresSecret(t *testing.T) {
	sw := &stubSweeper{}
	srv := newTestServer(sw, true)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/afkmute/reconcile?guild_id=g1", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/afkmute/reconcile?guild_id=g1", nil)
	req.Header.Set(secretHeader, "wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, sw.swept)
}

func TestReconcile_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubSweeper{}, true)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/afkmute/reconcile", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReconcile_OneGuild(t *testing.T) {
	sw := &stubSweeper{}
	srv := newTestServer(sw, true)

	req := httptest.NewRequest(http.MethodPost, "/afkmute/reconcile?guild_id=g9", nil)
	req.Header.Set(secretHeader, "s3cret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body reconcileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []reportJSON{{GuildID: "g9", Checked: 2, Cleared: 1}}, body.Reports)
	assert.Equal(t, []string{"g9"}, sw.swept)
}

func TestReconcile_AllGuilds(t *testing.T) {
	sw := &stubSweeper{}
	srv := newTestServer(sw, true)

	req := httptest.NewRequest(http.MethodPost, "/afkmute/reconcile", nil)
	req.Header.Set(secretHeader, "s3cret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"g1", "g2"}, sw.swept)
}

func TestReconcile_NotReady(t *testing.T) {
	sw := &stubSweeper{err: service.ErrNotReady}
	srv := newTestServer(sw, false)

	req := httptest.NewRequest(http.MethodPost, "/afkmute/reconcile?guild_id=g1", nil)
	req.Header.Set(secretHeader, "s3cret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReconcile_Failure(t *testing.T) {
	sw := &stubSweeper{err: errors.New("boom")}
	srv := newTestServer(sw, true)

	req := httptest.NewRequest(http.MethodPost, "/afkmute/reconcile?guild_id=g1", nil)
	req.Header.Set(secretHeader, "s3cret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body reconcileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "boom", body.Error)
}
