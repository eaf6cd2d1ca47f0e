package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jose-valero/afkmute-bot/internal/domain"
)

// AfkMuteService es el registro de AFK-mutes por guild. Invariante: hay registro
// para un usuario sii el bot lo considera AFK-muteado. El bit de mute de Discord
// puede divergir (un admin lo mutea/desmutea a mano) y no cuenta como verdad.
type AfkMuteService struct {
	store    RecordStore
	platform Platform
	log      *zap.Logger
	now      func() time.Time
	locks    *keyLocks

	mu     sync.Mutex
	guilds map[string]map[string]domain.AfkMuteRecord // cache por guild, se carga al primer uso
	epochs map[string]uint64                          // sube con cada escritura del guild
}

func NewAfkMuteService(store RecordStore, platform Platform, log *zap.Logger) *AfkMuteService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AfkMuteService{
		store:    store,
		platform: platform,
		log:      log,
		now:      time.Now,
		locks:    newKeyLocks(),
		guilds:   map[string]map[string]domain.AfkMuteRecord{},
		epochs:   map[string]uint64{},
	}
}

type ReconcileReport struct {
	GuildID string
	Checked int
	Cleared int
}

func (s *AfkMuteService) IsAfkMuted(ctx context.Context, guildID, userID string) (bool, error) {
	_, ok, err := s.lookup(ctx, guildID, userID)
	return ok, err
}

// Apply AFK-mutea a userID. Si está en voz primero lo mutea en Discord; si eso
// falla no se escribe nada.
func (s *AfkMuteService) Apply(ctx context.Context, guildID, userID, muterID string) (domain.AfkMuteRecord, error) {
	unlock := s.locks.Lock(guildID + "/" + userID)
	defer unlock()

	if _, ok, err := s.lookup(ctx, guildID, userID); err != nil {
		return domain.AfkMuteRecord{}, err
	} else if ok {
		return domain.AfkMuteRecord{}, domain.ErrAlreadyMuted
	}
	// la base puede tener un registro que la cache no vio (otra instancia con la misma DB)
	switch existing, err := s.store.Get(ctx, guildID, userID); {
	case err == nil:
		s.put(existing)
		return domain.AfkMuteRecord{}, domain.ErrAlreadyMuted
	case !errors.Is(err, domain.ErrRecordNotFound):
		return domain.AfkMuteRecord{}, fmt.Errorf("get afk mute: %w", err)
	}

	vs, err := s.platform.VoicePresence(ctx, guildID, userID)
	if err != nil {
		return domain.AfkMuteRecord{}, fmt.Errorf("voice presence: %w", err)
	}
	muted := false
	if vs.InVoice() {
		if err := s.platform.SetMuted(ctx, guildID, userID, true); err != nil {
			return domain.AfkMuteRecord{}, fmt.Errorf("mute %s: %w", userID, err)
		}
		muted = true
	}

	rec := domain.AfkMuteRecord{
		GuildID:   guildID,
		UserID:    userID,
		MuterID:   muterID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Set(ctx, rec); err != nil {
		if muted {
			// sin registro no puede quedar muteado por nosotros
			if uerr := s.platform.SetMuted(ctx, guildID, userID, false); uerr != nil {
				s.log.Error("rollback unmute failed", zap.String("guild", guildID), zap.String("user", userID), zap.Error(uerr))
			}
		}
		return domain.AfkMuteRecord{}, fmt.Errorf("save afk mute: %w", err)
	}
	s.put(rec)

	s.log.Info("afk mute applied",
		zap.String("guild", guildID), zap.String("user", userID), zap.String("muter", muterID), zap.Bool("in_voice", muted))
	return rec, nil
}

// Clear saca el AFK-mute. Sin presencia de voz sólo se permite con allowNoPresence
// (barridos y actividad fuera de voz); el registro se borra igual aunque no haya
// a quién desmutear.
func (s *AfkMuteService) Clear(ctx context.Context, guildID, userID string, allowNoPresence bool) error {
	unlock := s.locks.Lock(guildID + "/" + userID)
	defer unlock()

	if _, ok, err := s.lookup(ctx, guildID, userID); err != nil {
		return err
	} else if !ok {
		return domain.ErrNotMuted
	}

	vs, err := s.platform.VoicePresence(ctx, guildID, userID)
	if err != nil {
		return fmt.Errorf("voice presence: %w", err)
	}
	if !vs.InVoice() && !allowNoPresence {
		return domain.ErrNotInVoice
	}
	if vs.InVoice() {
		if err := s.platform.SetMuted(ctx, guildID, userID, false); err != nil {
			return fmt.Errorf("unmute %s: %w", userID, err)
		}
	}

	if err := s.store.Delete(ctx, guildID, userID); err != nil {
		return fmt.Errorf("delete afk mute: %w", err)
	}
	s.drop(guildID, userID)

	s.log.Info("afk mute cleared",
		zap.String("guild", guildID), zap.String("user", userID), zap.Bool("in_voice", vs.InVoice()))
	return nil
}

// ReconcileAll recorre todos los registros del guild contra su estado de voz.
// En voz y sin mute de Discord = drift (alguien lo desmuteó o perdimos estado),
// así que se limpia. Quien ya no es miembro no tiene voz y queda como está.
// Se puede correr las veces que haga falta.
func (s *AfkMuteService) ReconcileAll(ctx context.Context, guildID string) (ReconcileReport, error) {
	rep := ReconcileReport{GuildID: guildID}

	recs, err := s.store.List(ctx, guildID)
	if err != nil {
		return rep, fmt.Errorf("list afk mutes: %w", err)
	}

	var errs []error
	for _, rec := range recs {
		rep.Checked++

		vs, err := s.platform.VoicePresence(ctx, guildID, rec.UserID)
		if err != nil {
			errs = append(errs, fmt.Errorf("voice presence %s: %w", rec.UserID, err))
			continue
		}
		if !vs.InVoice() || vs.GuildMuted {
			continue
		}

		switch err := s.Clear(ctx, guildID, rec.UserID, true); {
		case err == nil:
			rep.Cleared++
		case errors.Is(err, domain.ErrNotMuted):
			// otro evento ya lo limpió entre el listado y acá
		default:
			s.log.Error("reconcile clear failed", zap.String("guild", guildID), zap.String("user", rec.UserID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return rep, errors.Join(errs...)
}

// List devuelve los AFK-mutes del guild, los más viejos primero.
func (s *AfkMuteService) List(ctx context.Context, guildID string) ([]domain.AfkMuteRecord, error) {
	if err := s.ensureLoaded(ctx, guildID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]domain.AfkMuteRecord, 0, len(s.guilds[guildID]))
	for _, rec := range s.guilds[guildID] {
		out = append(out, rec)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ---------- cache ----------

func (s *AfkMuteService) lookup(ctx context.Context, guildID, userID string) (domain.AfkMuteRecord, bool, error) {
	if err := s.ensureLoaded(ctx, guildID); err != nil {
		return domain.AfkMuteRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.guilds[guildID][userID]
	return rec, ok, nil
}

// ensureLoaded trae el guild completo del store la primera vez. Si hubo una
// escritura del guild mientras se leía, la lectura puede estar vieja y se repite.
func (s *AfkMuteService) ensureLoaded(ctx context.Context, guildID string) error {
	for {
		s.mu.Lock()
		if _, ok := s.guilds[guildID]; ok {
			s.mu.Unlock()
			return nil
		}
		epoch := s.epochs[guildID]
		s.mu.Unlock()

		recs, err := s.store.List(ctx, guildID)
		if err != nil {
			return fmt.Errorf("load afk mutes: %w", err)
		}

		s.mu.Lock()
		if _, ok := s.guilds[guildID]; ok {
			s.mu.Unlock()
			return nil
		}
		if s.epochs[guildID] == epoch {
			s.guilds[guildID] = byUser(recs)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
	}
}

// Warm carga de una sola consulta la cache de los guilds que todavía no la tienen
// (al conectar, con la lista del READY).
func (s *AfkMuteService) Warm(ctx context.Context, guildIDs []string) error {
	s.mu.Lock()
	epochs := make(map[string]uint64, len(guildIDs))
	missing := make([]string, 0, len(guildIDs))
	for _, g := range guildIDs {
		if _, ok := s.guilds[g]; !ok {
			epochs[g] = s.epochs[g]
			missing = append(missing, g)
		}
	}
	s.mu.Unlock()
	if len(missing) == 0 {
		return nil
	}

	recs, err := s.store.ListGuilds(ctx, missing)
	if err != nil {
		return fmt.Errorf("warm afk mutes: %w", err)
	}
	grouped := make(map[string][]domain.AfkMuteRecord, len(missing))
	for _, rec := range recs {
		grouped[rec.GuildID] = append(grouped[rec.GuildID], rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range missing {
		// ya cargado, o escrito durante la consulta: queda para ensureLoaded
		if _, ok := s.guilds[g]; ok || s.epochs[g] != epochs[g] {
			continue
		}
		s.guilds[g] = byUser(grouped[g])
	}
	return nil
}

func byUser(recs []domain.AfkMuteRecord) map[string]domain.AfkMuteRecord {
	m := make(map[string]domain.AfkMuteRecord, len(recs))
	for _, rec := range recs {
		m[rec.UserID] = rec
	}
	return m
}

func (s *AfkMuteService) put(rec domain.AfkMuteRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[rec.GuildID]++
	// si hicieron Forget en el medio, la próxima carga lo trae del store
	if m, ok := s.guilds[rec.GuildID]; ok {
		m[rec.UserID] = rec
	}
}

func (s *AfkMuteService) drop(guildID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[guildID]++
	delete(s.guilds[guildID], userID)
}

// Forget descarta la cache del guild (p.ej. cuando sacan al bot del server).
func (s *AfkMuteService) Forget(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, guildID)
}
