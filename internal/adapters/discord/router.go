package discord

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/jose-valero/afkmute-bot/internal/app/service"
	"github.com/jose-valero/afkmute-bot/internal/domain"
)

type Router struct {
	s       *discordgo.Session
	resp    responder
	guildID string // vacío = todos los guilds

	afk        *service.AfkMuteService
	reconciler *service.Reconciler
	platform   *Platform
	log        *zap.Logger

	cmdLimiter   *userLimiter
	sweepTimeout time.Duration
}

func NewRouter(
	s *discordgo.Session,
	guildID string,
	afk *service.AfkMuteService,
	reconciler *service.Reconciler,
	platform *Platform,
	log *zap.Logger,
	sweepTimeout time.Duration,
) *Router {
	return &Router{
		s:            s,
		resp:         s,
		guildID:      guildID,
		afk:          afk,
		reconciler:   reconciler,
		platform:     platform,
		log:          log,
		cmdLimiter:   newUserLimiter(2 * time.Second),
		sweepTimeout: sweepTimeout,
	}
}

// Intents que necesita el bot: voz para la cache de State, mensajes y reacciones
// como señal de actividad. Ninguno es privilegiado.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions

func (r *Router) Register() error {
	appID := r.s.State.User.ID
	for _, cmd := range Commands {
		if _, err := r.s.ApplicationCommandCreate(appID, r.guildID, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Handlers() {
	r.s.AddHandler(r.onReady)
	r.s.AddHandler(r.onResumed)
	r.s.AddHandler(r.onDisconnect)
	r.s.AddHandler(r.onGuildCreate)
	r.s.AddHandler(r.onGuildDelete)
	r.s.AddHandler(r.onVoiceStateUpdate)
	r.s.AddHandler(r.onMessageCreate)
	r.s.AddHandler(r.onMessageUpdate)
	r.s.AddHandler(r.onReactionAdd)
	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic.Type != discordgo.InteractionApplicationCommand {
			return
		}
		r.handleSlashCommand(ic)
	})
}

func (r *Router) wantGuild(guildID string) bool {
	return guildID != "" && (r.guildID == "" || guildID == r.guildID)
}

// ---------- ciclo de vida ----------

func (r *Router) onReady(_ *discordgo.Session, ev *discordgo.Ready) {
	r.platform.setReady(true)
	r.log.Info("gateway ready", zap.String("user", ev.User.Username), zap.Int("guilds", len(ev.Guilds)))

	ids := make([]string, 0, len(ev.Guilds))
	for _, g := range ev.Guilds {
		if r.wantGuild(g.ID) {
			ids = append(ids, g.ID)
		}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
		defer cancel()
		// si falla, cada guild se carga solo en el primer uso
		if err := r.afk.Warm(ctx, ids); err != nil {
			r.log.Warn("warm afk mute cache", zap.Error(err))
		}
	}()
}

func (r *Router) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	r.platform.setReady(true)
}

func (r *Router) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	r.platform.setReady(false)
	r.log.Warn("gateway disconnected")
}

// GuildCreate llega por cada guild al conectar y cuando nos agregan a uno nuevo:
// es el momento de barrer el drift acumulado mientras estábamos offline.
func (r *Router) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if !r.wantGuild(g.ID) || g.Unavailable {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.sweepTimeout)
		defer cancel()
		err := r.reconciler.Handle(ctx, domain.GuildJoinEvent{GuildID: g.ID})
		if err != nil && !errors.Is(err, service.ErrNotReady) {
			r.log.Error("guild join sweep", zap.String("guild", g.ID), zap.Error(err))
		}
	}()
}

func (r *Router) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		return
	}
	r.afk.Forget(g.ID)
}

// ---------- eventos que alimentan la reconciliación ----------

func (r *Router) onVoiceStateUpdate(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || !r.wantGuild(vs.GuildID) {
		return
	}
	r.dispatch(voiceEvent(vs))
}

func (r *Router) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if ev, ok := messageActivity(m.Message, "message_create"); ok && r.wantGuild(ev.GuildID) {
		r.dispatch(ev)
	}
}

// Borrados no cuentan: los puede hacer otro (un mod).
func (r *Router) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if ev, ok := messageActivity(m.Message, "message_update"); ok && r.wantGuild(ev.GuildID) {
		r.dispatch(ev)
	}
}

func (r *Router) onReactionAdd(_ *discordgo.Session, re *discordgo.MessageReactionAdd) {
	if ev, ok := reactionActivity(re); ok && r.wantGuild(ev.GuildID) {
		r.dispatch(ev)
	}
}

func (r *Router) dispatch(ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()
	if err := r.reconciler.Handle(ctx, ev); err != nil {
		r.log.Error("afk mute reconcile", zap.String("guild", ev.Guild()), zap.Error(err))
	}
}

func messageActivity(m *discordgo.Message, source string) (domain.ActivityEvent, bool) {
	// las ediciones de embeds llegan sin autor
	if m == nil || m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return domain.ActivityEvent{}, false
	}
	return domain.ActivityEvent{GuildID: m.GuildID, UserID: m.Author.ID, Source: source}, true
}

func reactionActivity(re *discordgo.MessageReactionAdd) (domain.ActivityEvent, bool) {
	if re.MessageReaction == nil || re.GuildID == "" || re.UserID == "" {
		return domain.ActivityEvent{}, false
	}
	if re.Member != nil && re.Member.User != nil && re.Member.User.Bot {
		return domain.ActivityEvent{}, false
	}
	return domain.ActivityEvent{GuildID: re.GuildID, UserID: re.UserID, Source: "reaction_add"}, true
}

// Guilds devuelve los guilds de la cache de State que atiende este router.
func (r *Router) Guilds() []string {
	if r.s.State == nil {
		return nil
	}
	r.s.State.RLock()
	defer r.s.State.RUnlock()
	out := make([]string, 0, len(r.s.State.Guilds))
	for _, g := range r.s.State.Guilds {
		if r.wantGuild(g.ID) {
			out = append(out, g.ID)
		}
	}
	return out
}
