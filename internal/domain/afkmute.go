package domain

import (
	"errors"
	"time"
)

// AfkMuteRecord: el usuario UserID fue AFK-muteado por MuterID en GuildID.
// No se edita nunca; limpiar y volver a mutear crea uno nuevo.
type AfkMuteRecord struct {
	GuildID   string
	UserID    string
	MuterID   string
	CreatedAt time.Time
}

// VoiceSnapshot es la foto del estado de voz de un miembro en un evento.
// ChannelID vacío = no está en ningún canal.
type VoiceSnapshot struct {
	ChannelID    string
	GuildMuted   bool
	SelfMuted    bool
	SelfDeafened bool
	Streaming    bool
	VideoEnabled bool
}

// InVoice indica si la foto corresponde a una presencia real en un canal.
func (v *VoiceSnapshot) InVoice() bool {
	return v != nil && v.ChannelID != ""
}

// Errores esperados: son resultados normales del negocio, no fallas del sistema.
// Los bordes (comandos, listeners) los traducen a mensajes para el usuario.
var (
	ErrAlreadyMuted = errors.New("user is already afk-muted")
	ErrNotMuted     = errors.New("user is not afk-muted")
	ErrNotInVoice   = errors.New("user is not in voice")

	// lo devuelven los stores cuando no hay registro; no es un error de negocio
	ErrRecordNotFound = errors.New("afk mute record not found")
)

// IsExpected reporta si err es uno de los tres errores de negocio.
func IsExpected(err error) bool {
	return errors.Is(err, ErrAlreadyMuted) || errors.Is(err, ErrNotMuted) || errors.Is(err, ErrNotInVoice)
}
