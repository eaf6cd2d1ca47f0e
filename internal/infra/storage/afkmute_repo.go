package storage

import (
	"context"
	"database/sql"
	"errors"

	pq "github.com/lib/pq"

	"github.com/jose-valero/afkmute-bot/internal/domain"
)

// ErrNotFound es el "no hay registro" que espera el servicio.
var ErrNotFound = domain.ErrRecordNotFound

// AfkMuteRepo guarda los AFK-mutes en postgres. No tiene lógica de negocio:
// las reglas viven en service.AfkMuteService.
type AfkMuteRepo struct{ db *sql.DB }

func NewAfkMuteRepo(db *sql.DB) *AfkMuteRepo { return &AfkMuteRepo{db: db} }

func (r *AfkMuteRepo) Get(ctx context.Context, guildID, userID string) (domain.AfkMuteRecord, error) {
	var rec domain.AfkMuteRecord
	err := r.db.QueryRowContext(ctx, `
SELECT guild_id, user_id, muter_id, created_at
  FROM afk_mutes
 WHERE guild_id = $1 AND user_id = $2
`, guildID, userID).Scan(&rec.GuildID, &rec.UserID, &rec.MuterID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AfkMuteRecord{}, ErrNotFound
	}
	return rec, err
}

// Set inserta o reemplaza el registro del usuario.
func (r *AfkMuteRepo) Set(ctx context.Context, rec domain.AfkMuteRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO afk_mutes (guild_id, user_id, muter_id, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (guild_id, user_id) DO UPDATE SET
  muter_id   = EXCLUDED.muter_id,
  created_at = EXCLUDED.created_at
`, rec.GuildID, rec.UserID, rec.MuterID, rec.CreatedAt)
	return err
}

func (r *AfkMuteRepo) Delete(ctx context.Context, guildID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM afk_mutes
 WHERE guild_id = $1 AND user_id = $2
`, guildID, userID)
	return err
}

func (r *AfkMuteRepo) List(ctx context.Context, guildID string) ([]domain.AfkMuteRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT guild_id, user_id, muter_id, created_at
  FROM afk_mutes
 WHERE guild_id = $1
 ORDER BY created_at ASC
`, guildID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// ListGuilds trae los registros de varios guilds en una sola consulta (carga de cache al conectar).
func (r *AfkMuteRepo) ListGuilds(ctx context.Context, guildIDs []string) ([]domain.AfkMuteRecord, error) {
	if len(guildIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT guild_id, user_id, muter_id, created_at
  FROM afk_mutes
 WHERE guild_id = ANY($1)
 ORDER BY created_at ASC
`, pq.Array(guildIDs))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]domain.AfkMuteRecord, error) {
	defer rows.Close()
	var out []domain.AfkMuteRecord
	for rows.Next() {
		var rec domain.AfkMuteRecord
		if err := rows.Scan(&rec.GuildID, &rec.UserID, &rec.MuterID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
