package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jose-valero/afkmute-bot/internal/domain"
)

// backend liviano para correr el bot sin postgres (una sola instancia)
const sqliteSchema = `CREATE TABLE IF NOT EXISTS afk_mutes (
	guild_id   TEXT    NOT NULL,
	user_id    TEXT    NOT NULL,
	muter_id   TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (guild_id, user_id)
);`

type afkMuteRow struct {
	GuildID   string `db:"guild_id"`
	UserID    string `db:"user_id"`
	MuterID   string `db:"muter_id"`
	CreatedAt int64  `db:"created_at"` // unix millis
}

func (r afkMuteRow) record() domain.AfkMuteRecord {
	return domain.AfkMuteRecord{
		GuildID:   r.GuildID,
		UserID:    r.UserID,
		MuterID:   r.MuterID,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// OpenSQLite abre (o crea) la base y asegura el schema.
func OpenSQLite(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create afk_mutes table: %w", err)
	}
	return db, nil
}

type SQLiteAfkMuteRepo struct{ db *sqlx.DB }

func NewSQLiteAfkMuteRepo(db *sqlx.DB) *SQLiteAfkMuteRepo { return &SQLiteAfkMuteRepo{db: db} }

func (r *SQLiteAfkMuteRepo) Get(ctx context.Context, guildID, userID string) (domain.AfkMuteRecord, error) {
	var row afkMuteRow
	err := r.db.GetContext(ctx, &row, `SELECT guild_id, user_id, muter_id, created_at FROM afk_mutes WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AfkMuteRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.AfkMuteRecord{}, err
	}
	return row.record(), nil
}

func (r *SQLiteAfkMuteRepo) Set(ctx context.Context, rec domain.AfkMuteRecord) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO afk_mutes (guild_id, user_id, muter_id, created_at) VALUES (:guild_id, :user_id, :muter_id, :created_at)`,
		afkMuteRow{GuildID: rec.GuildID, UserID: rec.UserID, MuterID: rec.MuterID, CreatedAt: rec.CreatedAt.UnixMilli()})
	return err
}

func (r *SQLiteAfkMuteRepo) Delete(ctx context.Context, guildID, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM afk_mutes WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return err
}

func (r *SQLiteAfkMuteRepo) List(ctx context.Context, guildID string) ([]domain.AfkMuteRecord, error) {
	var rows []afkMuteRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT guild_id, user_id, muter_id, created_at FROM afk_mutes WHERE guild_id = ? ORDER BY created_at ASC`, guildID); err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// sqlite tiene tope de variables por statement; partimos la lista.
const sqliteInChunk = 500

func (r *SQLiteAfkMuteRepo) ListGuilds(ctx context.Context, guildIDs []string) ([]domain.AfkMuteRecord, error) {
	var rows []afkMuteRow
	for start := 0; start < len(guildIDs); start += sqliteInChunk {
		end := min(start+sqliteInChunk, len(guildIDs))
		query, args, err := sqlx.In(`SELECT guild_id, user_id, muter_id, created_at FROM afk_mutes WHERE guild_id IN (?)`, guildIDs[start:end])
		if err != nil {
			return nil, err
		}
		var chunk []afkMuteRow
		if err := r.db.SelectContext(ctx, &chunk, r.db.Rebind(query), args...); err != nil {
			return nil, err
		}
		rows = append(rows, chunk...)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt < rows[j].CreatedAt })
	return toRecords(rows), nil
}

func toRecords(rows []afkMuteRow) []domain.AfkMuteRecord {
	out := make([]domain.AfkMuteRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out
}
