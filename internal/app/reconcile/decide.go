// Package reconcile decide qué hacer con un AFK-mute frente a una transición de voz.
// No guarda estado: todo lo que necesita viene en los argumentos.
package reconcile

import "github.com/jose-valero/afkmute-bot/internal/domain"

type Action int

const (
	None      Action = iota
	ClearMute        // Clear(allowNoPresence=false) en el registro
	Remute           // volver a aplicar el mute de Discord sin tocar el registro
)

func (a Action) String() string {
	switch a {
	case ClearMute:
		return "clear"
	case Remute:
		return "remute"
	default:
		return "none"
	}
}

type Decision struct {
	Action Action
	Reason string
}

// Decide aplica las reglas en orden. prev es nil si el usuario no tenía presencia de voz.
func Decide(prev *domain.VoiceSnapshot, cur domain.VoiceSnapshot, afkMuted bool) Decision {
	if !afkMuted {
		return Decision{Action: None}
	}

	// 1) un admin le sacó el mute a mano: dejamos de trackearlo y cortamos acá
	if prev != nil && prev.GuildMuted && !cur.GuildMuted {
		return Decision{Action: ClearMute, Reason: "guild mute removed externally"}
	}

	// 2) entró a voz estando AFK-muteado pero sin el mute de Discord: reparamos el bit
	if prev == nil {
		if cur.ChannelID != "" && !cur.GuildMuted {
			return Decision{Action: Remute, Reason: "joined voice while afk-muted"}
		}
		return Decision{Action: None}
	}

	// 3) cualquier cambio que sólo puede hacer el propio usuario demuestra que no está AFK.
	// channel_id no cuenta: lo puede cambiar un admin moviéndolo.
	if flag, ok := firstToggled(*prev, cur); ok {
		return Decision{Action: ClearMute, Reason: flag + " toggled"}
	}
	return Decision{Action: None}
}

func firstToggled(prev, cur domain.VoiceSnapshot) (string, bool) {
	switch {
	case prev.SelfDeafened != cur.SelfDeafened:
		return "self_deafened", true
	case prev.SelfMuted != cur.SelfMuted:
		return "self_muted", true
	case prev.Streaming != cur.Streaming:
		return "streaming", true
	case prev.VideoEnabled != cur.VideoEnabled:
		return "video_enabled", true
	}
	return "", false
}
