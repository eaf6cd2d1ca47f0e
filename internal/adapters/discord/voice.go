package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/afkmute-bot/internal/domain"
)

func snapshotOf(vs *discordgo.VoiceState) domain.VoiceSnapshot {
	return domain.VoiceSnapshot{
		ChannelID:    vs.ChannelID,
		GuildMuted:   vs.Mute,
		SelfMuted:    vs.SelfMute,
		SelfDeafened: vs.SelfDeaf,
		Streaming:    vs.SelfStream,
		VideoEnabled: vs.SelfVideo,
	}
}

// voiceEvent arma el evento de dominio. BeforeUpdate lo completa discordgo desde
// State; si no estaba en voz viene nil (o sin canal) y Previous queda nil.
func voiceEvent(vs *discordgo.VoiceStateUpdate) domain.VoiceStateEvent {
	ev := domain.VoiceStateEvent{
		GuildID: vs.GuildID,
		UserID:  vs.UserID,
		Current: snapshotOf(vs.VoiceState),
	}
	if b := vs.BeforeUpdate; b != nil && b.ChannelID != "" {
		prev := snapshotOf(b)
		ev.Previous = &prev
	}
	return ev
}
