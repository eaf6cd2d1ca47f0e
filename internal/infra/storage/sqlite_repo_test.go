package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/afkmute-bot/internal/domain"
)

func newSQLiteRepo(t *testing.T) *SQLiteAfkMuteRepo {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "afkmute.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteAfkMuteRepo(db)
}

func rec(guild, user string, at int64) domain.AfkMuteRecord {
	return domain.AfkMuteRecord{GuildID: guild, UserID: user, MuterID: "muter", CreatedAt: time.UnixMilli(at).UTC()}
}

func TestSQLite_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	_, err := repo.Get(ctx, "g", "u")
	assert.ErrorIs(t, err, ErrNotFound)

	want := rec("g", "u", 1_700_000_000_123)
	require.NoError(t, repo.Set(ctx, want))

	got, err := repo.Get(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, repo.Delete(ctx, "g", "u"))
	_, err = repo.Get(ctx, "g", "u")
	assert.ErrorIs(t, err, ErrNotFound)

	// borrar algo que no existe no es error
	require.NoError(t, repo.Delete(ctx, "g", "u"))
}

func TestSQLite_SetReplaces(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	require.NoError(t, repo.Set(ctx, rec("g", "u", 1000)))
	second := rec("g", "u", 2000)
	second.MuterID = "other"
	require.NoError(t, repo.Set(ctx, second))

	got, err := repo.Get(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestSQLite_ListScopedByGuild(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	require.NoError(t, repo.Set(ctx, rec("g", "b", 2000)))
	require.NoError(t, repo.Set(ctx, rec("g", "a", 1000)))
	require.NoError(t, repo.Set(ctx, rec("other", "c", 500)))

	list, err := repo.List(ctx, "g")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].UserID)
	assert.Equal(t, "b", list[1].UserID)

	empty, err := repo.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_ListGuilds(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	for i := 0; i < 1200; i += 100 {
		require.NoError(t, repo.Set(ctx, rec(fmt.Sprintf("g%d", i), "u", int64(10_000-i))))
	}
	require.NoError(t, repo.Set(ctx, rec("g0", "v", 1)))

	guilds := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		if i != 500 {
			guilds = append(guilds, fmt.Sprintf("g%d", i))
		}
	}

	got, err := repo.ListGuilds(ctx, guilds)
	require.NoError(t, err)
	require.Len(t, got, 12)
	assert.Equal(t, "g0", got[0].GuildID) // el más viejo primero
	assert.Equal(t, "v", got[0].UserID)
	for _, r := range got {
		assert.NotEqual(t, "g500", r.GuildID)
	}

	none, err := repo.ListGuilds(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
