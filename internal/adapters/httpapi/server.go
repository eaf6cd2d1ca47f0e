package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/jose-valero/afkmute-bot/internal/app/service"
)

const secretHeader = "X-AFKMUTE-SECRET"

// Lo implementa service.Sweeper
type Sweeper interface {
	Sweep(ctx context.Context, guildID string) (service.ReconcileReport, error)
	SweepAll(ctx context.Context, guildIDs []string) ([]service.ReconcileReport, error)
}

type Server struct {
	secret  string
	sweeper Sweeper
	probe   service.ReadinessProbe
	guilds  func() []string
	log     *zap.Logger
	mux     *http.ServeMux
	started time.Time
}

// New arma el servidor admin. guilds devuelve los guilds donde está el bot
// (se usa cuando el reconcile no nombra uno).
func New(secret string, sweeper Sweeper, probe service.ReadinessProbe, guilds func() []string, log *zap.Logger) *Server {
	s := &Server{
		secret:  secret,
		sweeper: sweeper,
		probe:   probe,
		guilds:  guilds,
		log:     log,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/afkmute/reconcile", s.handleReconcile)
}

func (s *Server) Handler() http.Handler { return s.mux }

type healthResponse struct {
	Ready          bool    `json:"ready"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
	HostUptime     uint64  `json:"host_uptime_seconds,omitempty"`
	MemUsedPercent float64 `json:"mem_used_percent,omitempty"`
	Goroutines     int     `json:"goroutines"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := healthResponse{
		Ready:         s.probe.Ready(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	// métricas del host: si fallan no tumban el health
	if up, err := host.Uptime(); err == nil {
		resp.HostUptime = up
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemUsedPercent = vm.UsedPercent
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type reportJSON struct {
	GuildID string `json:"guild_id"`
	Checked int    `json:"checked"`
	Cleared int    `json:"cleared"`
}

type reconcileResponse struct {
	Reports []reportJSON `json:"reports"`
	Error   string       `json:"error,omitempty"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(s.secret)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var (
		reps []service.ReconcileReport
		err  error
	)
	if gid := r.URL.Query().Get("guild_id"); gid != "" {
		var rep service.ReconcileReport
		rep, err = s.sweeper.Sweep(r.Context(), gid)
		reps = []service.ReconcileReport{rep}
	} else {
		reps, err = s.sweeper.SweepAll(r.Context(), s.guilds())
	}

	resp := reconcileResponse{Reports: make([]reportJSON, 0, len(reps))}
	for _, rep := range reps {
		resp.Reports = append(resp.Reports, reportJSON{GuildID: rep.GuildID, Checked: rep.Checked, Cleared: rep.Cleared})
	}

	status := http.StatusOK
	switch {
	case errors.Is(err, service.ErrNotReady):
		status = http.StatusServiceUnavailable
		resp.Error = err.Error()
	case err != nil:
		status = http.StatusInternalServerError
		resp.Error = err.Error()
	}
	s.log.Info("admin reconcile", zap.Int("guilds", len(reps)), zap.Int("status", status))
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start escucha en addr hasta que ctx se cancela.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("🌐 HTTP listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}
