package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNotReady = errors.New("not ready")

// Sweeper corre el barrido de reconciliación cuando el bot (re)entra a un guild,
// esperando primero a que el gateway esté listo.
type Sweeper struct {
	registry *AfkMuteService
	probe    ReadinessProbe
	timeout  time.Duration
	poll     time.Duration
	log      *zap.Logger
}

func NewSweeper(registry *AfkMuteService, probe ReadinessProbe, timeout, poll time.Duration, log *zap.Logger) *Sweeper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if poll <= 0 {
		poll = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{registry: registry, probe: probe, timeout: timeout, poll: poll, log: log}
}

// WaitReady espera como mucho s.timeout. false = no estuvo listo a tiempo.
func (s *Sweeper) WaitReady(ctx context.Context) bool {
	if s.probe.Ready() {
		return true
	}
	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(s.poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return s.probe.Ready()
		case <-tick.C:
			if s.probe.Ready() {
				return true
			}
		}
	}
}

// Sweep reconcilia un guild. Si no estamos listos a tiempo se saltea este ciclo
// (se loguea y se devuelve ErrNotReady, no es fatal).
func (s *Sweeper) Sweep(ctx context.Context, guildID string) (ReconcileReport, error) {
	if !s.WaitReady(ctx) {
		s.log.Warn("not ready in time, skipping afk mute sweep", zap.String("guild", guildID), zap.Duration("timeout", s.timeout))
		return ReconcileReport{GuildID: guildID}, ErrNotReady
	}

	rep, err := s.registry.ReconcileAll(ctx, guildID)
	if err != nil {
		s.log.Error("afk mute sweep finished with errors", zap.String("guild", guildID), zap.Int("checked", rep.Checked), zap.Int("cleared", rep.Cleared), zap.Error(err))
		return rep, err
	}
	s.log.Info("afk mute sweep done", zap.String("guild", guildID), zap.Int("checked", rep.Checked), zap.Int("cleared", rep.Cleared))
	return rep, nil
}

// SweepAll reconcilia varios guilds en paralelo; son independientes entre sí.
func (s *Sweeper) SweepAll(ctx context.Context, guildIDs []string) ([]ReconcileReport, error) {
	reps := make([]ReconcileReport, len(guildIDs))
	var g errgroup.Group
	g.SetLimit(4)
	for i, gid := range guildIDs {
		i, gid := i, gid
		g.Go(func() error {
			rep, err := s.Sweep(ctx, gid)
			reps[i] = rep
			return err
		})
	}
	return reps, g.Wait()
}
