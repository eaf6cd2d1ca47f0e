package domain

// Event es la unión de lo que entrega el gateway. Se despacha con un type switch.
type Event interface {
	Guild() string
	isEvent()
}

// VoiceStateEvent: transición de voz de un miembro. Previous es nil si no tenía presencia previa.
type VoiceStateEvent struct {
	GuildID  string
	UserID   string
	Previous *VoiceSnapshot
	Current  VoiceSnapshot
}

// ActivityEvent: el usuario hizo algo (mensaje nuevo, edición, reacción).
type ActivityEvent struct {
	GuildID string
	UserID  string
	Source  string // message_create | message_update | reaction_add
}

// GuildJoinEvent: el bot (re)entró al guild.
type GuildJoinEvent struct {
	GuildID string
}

func (e VoiceStateEvent) Guild() string { return e.GuildID }
func (e ActivityEvent) Guild() string   { return e.GuildID }
func (e GuildJoinEvent) Guild() string  { return e.GuildID }

func (VoiceStateEvent) isEvent() {}
func (ActivityEvent) isEvent()   {}
func (GuildJoinEvent) isEvent()  {}
