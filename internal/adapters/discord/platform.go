package discord

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/afkmute-bot/internal/domain"
)

// Platform implementa service.Platform sobre la sesión de discordgo. La presencia
// de voz sale de la cache de State (la llena el gateway con GUILD_VOICE_STATES).
type Platform struct {
	s     *discordgo.Session
	ready atomic.Bool
}

func NewPlatform(s *discordgo.Session) *Platform {
	return &Platform{s: s}
}

// Ready: recibimos READY (o RESUMED) y no estamos desconectados.
func (p *Platform) Ready() bool { return p.ready.Load() }

func (p *Platform) setReady(v bool) { p.ready.Store(v) }

func (p *Platform) VoicePresence(_ context.Context, guildID, userID string) (*domain.VoiceSnapshot, error) {
	vs, err := p.s.State.VoiceState(guildID, userID)
	if errors.Is(err, discordgo.ErrStateNotFound) || errors.Is(err, discordgo.ErrNilState) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if vs == nil || vs.ChannelID == "" {
		return nil, nil
	}
	snap := snapshotOf(vs)
	return &snap, nil
}

func (p *Platform) SetMuted(ctx context.Context, guildID, userID string, muted bool) error {
	return p.s.GuildMemberMute(guildID, userID, muted, discordgo.WithContext(ctx))
}
