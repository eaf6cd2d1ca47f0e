package service

import (
	"context"

	"github.com/jose-valero/afkmute-bot/internal/domain"
)

// Lo implementan internal/infra/storage.AfkMuteRepo (postgres) y SQLiteAfkMuteRepo.
// Get devuelve domain.ErrRecordNotFound si no hay registro.
type RecordStore interface {
	Get(ctx context.Context, guildID, userID string) (domain.AfkMuteRecord, error)
	Set(ctx context.Context, rec domain.AfkMuteRecord) error
	Delete(ctx context.Context, guildID, userID string) error
	List(ctx context.Context, guildID string) ([]domain.AfkMuteRecord, error)
	ListGuilds(ctx context.Context, guildIDs []string) ([]domain.AfkMuteRecord, error)
}

// Lo implementa internal/adapters/discord.Platform
type Platform interface {
	// VoicePresence devuelve nil (sin error) si el usuario no está en voz.
	VoicePresence(ctx context.Context, guildID, userID string) (*domain.VoiceSnapshot, error)
	SetMuted(ctx context.Context, guildID, userID string, muted bool) error
}

type ReadinessProbe interface {
	Ready() bool
}
