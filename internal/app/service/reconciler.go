package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jose-valero/afkmute-bot/internal/app/reconcile"
	"github.com/jose-valero/afkmute-bot/internal/domain"
)

// Reconciler recibe los eventos del gateway y los baja al registro.
type Reconciler struct {
	registry *AfkMuteService
	platform Platform
	sweeper  *Sweeper
	log      *zap.Logger
}

func NewReconciler(registry *AfkMuteService, platform Platform, sweeper *Sweeper, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{registry: registry, platform: platform, sweeper: sweeper, log: log}
}

// Handle procesa un evento. Los errores de negocio (ya muteado, no muteado, no en voz)
// se loguean en debug y no se devuelven: acá no hay un usuario esperando respuesta.
func (r *Reconciler) Handle(ctx context.Context, ev domain.Event) error {
	var err error
	switch e := ev.(type) {
	case domain.VoiceStateEvent:
		err = r.onVoiceState(ctx, e)
	case domain.ActivityEvent:
		err = r.onActivity(ctx, e)
	case domain.GuildJoinEvent:
		_, err = r.sweeper.Sweep(ctx, e.GuildID)
	default:
		return fmt.Errorf("unknown event %T", ev)
	}

	if domain.IsExpected(err) {
		r.log.Debug("event ended in expected condition", zap.String("guild", ev.Guild()), zap.String("event", fmt.Sprintf("%T", ev)), zap.Error(err))
		return nil
	}
	return err
}

func (r *Reconciler) onVoiceState(ctx context.Context, e domain.VoiceStateEvent) error {
	muted, err := r.registry.IsAfkMuted(ctx, e.GuildID, e.UserID)
	if err != nil {
		return err
	}

	d := reconcile.Decide(e.Previous, e.Current, muted)
	switch d.Action {
	case reconcile.ClearMute:
		r.log.Debug("voice decision", zap.String("guild", e.GuildID), zap.String("user", e.UserID), zap.Stringer("action", d.Action), zap.String("reason", d.Reason))
		return r.registry.Clear(ctx, e.GuildID, e.UserID, false)
	case reconcile.Remute:
		// el registro ya existe; sólo reparamos el bit de Discord
		r.log.Info("re-applying afk mute on join", zap.String("guild", e.GuildID), zap.String("user", e.UserID))
		if err := r.platform.SetMuted(ctx, e.GuildID, e.UserID, true); err != nil {
			return fmt.Errorf("remute %s: %w", e.UserID, err)
		}
	}
	return nil
}

func (r *Reconciler) onActivity(ctx context.Context, e domain.ActivityEvent) error {
	muted, err := r.registry.IsAfkMuted(ctx, e.GuildID, e.UserID)
	if err != nil || !muted {
		return err
	}
	err = r.registry.Clear(ctx, e.GuildID, e.UserID, true)
	if errors.Is(err, domain.ErrNotMuted) {
		// lo limpió otro evento en paralelo
		return nil
	}
	if err == nil {
		r.log.Info("afk mute cleared by activity", zap.String("guild", e.GuildID), zap.String("user", e.UserID), zap.String("source", e.Source))
	}
	return err
}
