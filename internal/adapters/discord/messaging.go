package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// responder es la parte de la sesión que usamos para contestar interacciones.
type responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func (r *Router) sendEphemeral(ic *discordgo.InteractionCreate, msg string) {
	err := r.resp.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		r.log.Warn("sendEphemeral", zap.Error(err))
	}
}

// Defer efímero (para trabajos >3s)
func (r *Router) deferEphemeral(ic *discordgo.InteractionCreate) {
	err := r.resp.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		r.log.Warn("deferEphemeral", zap.Error(err))
	}
}

func (r *Router) replyEphemeral(ic *discordgo.InteractionCreate, content string, embeds ...*discordgo.MessageEmbed) {
	_, err := r.resp.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Embeds:  embeds,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err == nil {
		return
	}
	// Fallback sólo si todavía no hay respuesta (webhook desconocido)
	var reqErr *discordgo.RESTError
	if errors.As(err, &reqErr) && reqErr.Message != nil && reqErr.Message.Code == discordgo.ErrCodeUnknownWebhook {
		r.sendEphemeral(ic, content)
		return
	}
	r.log.Warn("replyEphemeral", zap.Error(err))
}

// Defer público: el resultado lo ve todo el canal.
func (r *Router) deferPublic(ic *discordgo.InteractionCreate) {
	err := r.resp.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		r.log.Warn("deferPublic", zap.Error(err))
	}
}

// replaceDeferred borra el "pensando…" de un defer público y manda el resultado
// como mensaje nuevo: así las menciones notifican y un error puede ir efímero.
func (r *Router) replaceDeferred(ic *discordgo.InteractionCreate, content string, ephemeral bool, mentionUsers ...string) {
	if err := r.resp.InteractionResponseDelete(ic.Interaction); err != nil {
		r.log.Warn("replaceDeferred delete", zap.Error(err))
	}
	params := &discordgo.WebhookParams{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: mentionUsers},
	}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := r.resp.FollowupMessageCreate(ic.Interaction, true, params); err != nil {
		r.log.Warn("replaceDeferred followup", zap.Error(err))
	}
}
