package service

import (
	"context"
	"errors"
	"sync"

	"github.com/jose-valero/afkmute-bot/internal/domain"
)

type memStore struct {
	mu     sync.Mutex
	recs   map[string]domain.AfkMuteRecord // guild/user
	setErr error
	lists  int
	onList func() // se llama una vez, después de leer y antes de devolver
}

func newMemStore(recs ...domain.AfkMuteRecord) *memStore {
	m := &memStore{recs: map[string]domain.AfkMuteRecord{}}
	for _, r := range recs {
		m.recs[r.GuildID+"/"+r.UserID] = r
	}
	return m
}

func (m *memStore) Get(_ context.Context, guildID, userID string) (domain.AfkMuteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[guildID+"/"+userID]
	if !ok {
		return domain.AfkMuteRecord{}, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (m *memStore) Set(_ context.Context, rec domain.AfkMuteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.recs[rec.GuildID+"/"+rec.UserID] = rec
	return nil
}

func (m *memStore) Delete(_ context.Context, guildID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, guildID+"/"+userID)
	return nil
}

func (m *memStore) List(_ context.Context, guildID string) ([]domain.AfkMuteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	var out []domain.AfkMuteRecord
	for _, r := range m.recs {
		if r.GuildID == guildID {
			out = append(out, r)
		}
	}
	hook := m.onList
	m.onList = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	m.mu.Lock()
	return out, nil
}

func (m *memStore) ListGuilds(_ context.Context, guildIDs []string) ([]domain.AfkMuteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	want := map[string]bool{}
	for _, id := range guildIDs {
		want[id] = true
	}
	var out []domain.AfkMuteRecord
	for _, r := range m.recs {
		if want[r.GuildID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) has(guildID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.recs[guildID+"/"+userID]
	return ok
}

type muteCall struct {
	GuildID, UserID string
	Muted           bool
}

// fakePlatform: voice tiene la presencia por usuario; SetMuted actualiza GuildMuted
// como lo haría Discord.
type fakePlatform struct {
	mu      sync.Mutex
	voice   map[string]*domain.VoiceSnapshot
	calls   []muteCall
	muteErr error

	onPresence func(userID string) // se llama una vez, antes de leer la presencia
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{voice: map[string]*domain.VoiceSnapshot{}}
}

func (p *fakePlatform) join(userID string, guildMuted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voice[userID] = &domain.VoiceSnapshot{ChannelID: "vc", GuildMuted: guildMuted}
}

func (p *fakePlatform) VoicePresence(_ context.Context, _, userID string) (*domain.VoiceSnapshot, error) {
	p.mu.Lock()
	hook := p.onPresence
	p.onPresence = nil
	p.mu.Unlock()
	if hook != nil {
		hook(userID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	vs, ok := p.voice[userID]
	if !ok {
		return nil, nil
	}
	cp := *vs
	return &cp, nil
}

func (p *fakePlatform) SetMuted(_ context.Context, guildID, userID string, muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.muteErr != nil {
		return p.muteErr
	}
	p.calls = append(p.calls, muteCall{guildID, userID, muted})
	if vs, ok := p.voice[userID]; ok {
		vs.GuildMuted = muted
	}
	return nil
}

func (p *fakePlatform) muteCalls() []muteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]muteCall(nil), p.calls...)
}

var errMissingPermissions = errors.New("HTTP 403 Forbidden, Missing Permissions")

type flagProbe struct {
	mu    sync.Mutex
	ready bool
}

func (f *flagProbe) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *flagProbe) set(v bool) {
	f.mu.Lock()
	f.ready = v
	f.mu.Unlock()
}
