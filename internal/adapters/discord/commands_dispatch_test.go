package discord

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jose-valero/afkmute-bot/internal/app/service"
	"github.com/jose-valero/afkmute-bot/internal/domain"
)

type sentResponse struct {
	kind   string // respond | delete | followup
	typ    discordgo.InteractionResponseType
	params *discordgo.WebhookParams
}

type fakeResponder struct {
	mu   sync.Mutex
	sent []sentResponse
}

func (f *fakeResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentResponse{kind: "respond", typ: resp.Type})
	return nil
}

func (f *fakeResponder) InteractionResponseDelete(_ *discordgo.Interaction, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentResponse{kind: "delete"})
	return nil
}

func (f *fakeResponder) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentResponse{kind: "followup", params: data})
	return &discordgo.Message{}, nil
}

type mapStore struct {
	mu   sync.Mutex
	recs map[string]domain.AfkMuteRecord
}

func (m *mapStore) Get(_ context.Context, g, u string) (domain.AfkMuteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[g+"/"+u]
	if !ok {
		return domain.AfkMuteRecord{}, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (m *mapStore) Set(_ context.Context, rec domain.AfkMuteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.GuildID+"/"+rec.UserID] = rec
	return nil
}

func (m *mapStore) Delete(_ context.Context, g, u string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, g+"/"+u)
	return nil
}

func (m *mapStore) List(_ context.Context, g string) ([]domain.AfkMuteRecord, error) {
	return m.ListGuilds(context.Background(), []string{g})
}

func (m *mapStore) ListGuilds(_ context.Context, gs []string) ([]domain.AfkMuteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AfkMuteRecord
	for _, rec := range m.recs {
		for _, g := range gs {
			if rec.GuildID == g {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// nadie está en voz: Apply sólo escribe el registro
type offlinePlatform struct{}

func (offlinePlatform) VoicePresence(context.Context, string, string) (*domain.VoiceSnapshot, error) {
	return nil, nil
}

func (offlinePlatform) SetMuted(context.Context, string, string, bool) error { return nil }

func newCommandRouter() (*Router, *fakeResponder) {
	fr := &fakeResponder{}
	store := &mapStore{recs: map[string]domain.AfkMuteRecord{}}
	return &Router{
		resp:       fr,
		afk:        service.NewAfkMuteService(store, offlinePlatform{}, nil),
		log:        zap.NewNop(),
		cmdLimiter: newUserLimiter(0),
	}, fr
}

func afkmuteInteraction(invoker, target string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g",
		Member:  &discordgo.Member{User: &discordgo.User{ID: invoker}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "afkmute",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: target},
			},
		},
	}}
}

func TestAfkmuteCommand_DefersBeforeApplying(t *testing.T) {
	r, fr := newCommandRouter()

	r.handleSlashCommand(afkmuteInteraction("mod", "42"))

	require.Len(t, fr.sent, 3)
	assert.Equal(t, "respond", fr.sent[0].kind)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, fr.sent[0].typ)
	assert.Equal(t, "delete", fr.sent[1].kind)

	notice := fr.sent[2].params
	require.NotNil(t, notice)
	assert.Equal(t, afkMutedNotice("42"), notice.Content)
	assert.Equal(t, []string{"42"}, notice.AllowedMentions.Users)
	assert.Zero(t, notice.Flags&discordgo.MessageFlagsEphemeral)

	muted, err := r.afk.IsAfkMuted(context.Background(), "g", "42")
	require.NoError(t, err)
	assert.True(t, muted)
}

func TestAfkmuteCommand_AlreadyMutedIsEphemeral(t *testing.T) {
	r, fr := newCommandRouter()
	r.handleSlashCommand(afkmuteInteraction("mod", "42"))
	fr.sent = nil
	r.handleSlashCommand(afkmuteInteraction("mod", "42"))

	require.Len(t, fr.sent, 3)
	reply := fr.sent[2].params
	require.NotNil(t, reply)
	assert.Equal(t, "⚠️ Este usuario ya está afk-muteado.", reply.Content)
	assert.NotZero(t, reply.Flags&discordgo.MessageFlagsEphemeral)
	assert.Empty(t, reply.AllowedMentions.Users)
}
