// acá sólo manejamos la interacción del usuario y despachamos al servicio de afk-mute;
// las reglas viven en internal/app/service
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/jose-valero/afkmute-bot/internal/domain"
)

func (r *Router) handleSlashCommand(ic *discordgo.InteractionCreate) {
	cmd := ic.ApplicationCommandData()
	if ic.Member == nil || ic.Member.User == nil {
		// DM: los comandos de afk-mute no tienen sentido fuera de un guild
		r.sendEphemeral(ic, "⚠️ Este comando sólo funciona dentro de un servidor.")
		return
	}
	invoker := ic.Member.User.ID
	r.log.Info("cmd", zap.String("name", cmd.Name), zap.String("by", invoker), zap.String("guild", ic.GuildID))

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in cmd", zap.String("name", cmd.Name), zap.Any("panic", rec))
			r.sendEphemeral(ic, "❌ Ocurrió un error inesperado procesando el comando. Contacta con un administrador.")
		}
	}()

	if cmd.Name != "invite" && !r.cmdLimiter.Allow(invoker) {
		r.sendEphemeral(ic, "⏳ Esperá un segundo…")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()
	defer r.step("cmd." + cmd.Name)()

	switch cmd.Name {

	//--> mutea al target; la respuesta es pública para que el target se entere
	case "afkmute":
		target, ok := optUserID(ic, "user")
		if !ok {
			r.sendEphemeral(ic, "⚠️ Falta el usuario.")
			return
		}
		// mute por REST + escritura en DB: puede pasar de 3s
		r.deferPublic(ic)
		if _, err := r.afk.Apply(ctx, ic.GuildID, target, invoker); err != nil {
			r.replaceDeferred(ic, r.errorMessage(err, "afkmute"), true)
			return
		}
		r.replaceDeferred(ic, afkMutedNotice(target), false, target)

	//--> el propio usuario se saca el afk-mute (tiene que estar en voz)
	case "unafkmute":
		r.deferEphemeral(ic)
		if err := r.afk.Clear(ctx, ic.GuildID, invoker, false); err != nil {
			r.replyEphemeral(ic, r.errorMessage(err, "unafkmute"))
			return
		}
		r.replyEphemeral(ic, "✅ Listo, ya no estás muteado.")

	case "afklist":
		r.deferEphemeral(ic)
		recs, err := r.afk.List(ctx, ic.GuildID)
		if err != nil {
			r.replyEphemeral(ic, r.errorMessage(err, "afklist"))
			return
		}
		r.replyEphemeral(ic, formatAfkList(recs))

	case "invite":
		r.sendEphemeral(ic, inviteURL(r.s.State.User.ID))
	}
}

// errorMessage traduce el error a un mensaje para el usuario. Los errores de negocio
// no se loguean como error; el resto sí.
func (r *Router) errorMessage(err error, cmd string) string {
	if msg, ok := expectedErrorMessage(err); ok {
		return msg
	}
	r.log.Error("command failed", zap.String("cmd", cmd), zap.Error(err))
	return "⚠️ No pude completar la acción: " + err.Error()
}

func expectedErrorMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrAlreadyMuted):
		return "⚠️ Este usuario ya está afk-muteado.", true
	case errors.Is(err, domain.ErrNotMuted):
		return "ℹ️ No estás afk-muteado.", true
	case errors.Is(err, domain.ErrNotInVoice):
		return "🎧 Tenés que estar en voz para sacarte el afk-mute.", true
	}
	return "", false
}

func afkMutedNotice(userID string) string {
	return fmt.Sprintf("<@%s>, fuiste afk-muteado. Podés desmutearte con `/unafkmute`, o haciendo algo "+
		"(mandar un mensaje, mutearte/ensordecerte, reaccionar a un mensaje, etc).\n\n"+
		"La próxima acordate de mutearte.", userID)
}

func formatAfkList(recs []domain.AfkMuteRecord) string {
	if len(recs) == 0 {
		return "ℹ️ No hay nadie afk-muteado."
	}
	var b strings.Builder
	b.WriteString("😴 **AFK-muteados**\n")
	for i, rec := range recs {
		fmt.Fprintf(&b, "%d) <@%s> — por <@%s> <t:%d:R>\n", i+1, rec.UserID, rec.MuterID, rec.CreatedAt.Unix())
	}
	return b.String()
}

func inviteURL(appID string) string {
	return fmt.Sprintf("https://discord.com/api/oauth2/authorize?client_id=%s&permissions=%d&scope=bot%%20applications.commands", appID, invitePermissions)
}

func optUserID(ic *discordgo.InteractionCreate, name string) (string, bool) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return "", false
	}
	for _, o := range ic.ApplicationCommandData().Options {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionUser {
			if u := o.UserValue(nil); u != nil && u.ID != "" {
				return u.ID, true
			}
		}
	}
	return "", false
}
