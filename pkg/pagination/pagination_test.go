package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type row struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func rowCursor(r row) Cursor {
	return Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

func TestPageSizeClamps(t *testing.T) {
	assert.Equal(t, DefaultLimit, Params{}.PageSize())
	assert.Equal(t, DefaultLimit, Params{Limit: -3}.PageSize())
	assert.Equal(t, 7, Params{Limit: 7}.PageSize())
	assert.Equal(t, MaxLimit, Params{Limit: MaxLimit + 1}.PageSize())
}

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123456000, time.UTC), ID: uuid.New()}
	encoded := in.Encode()
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
	assert.NotContains(t, encoded, "=")

	out, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeEmptyIsFirstPage(t *testing.T) {
	cursor, err := Decode("  ")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeRejectsForeignCursors(t *testing.T) {
	for _, value := range []string{"%%%", "bm9jb2xvbg", "MTI6bm90LWEtdXVpZA"} {
		_, err := Decode(value)
		assert.True(t, errors.Is(err, ErrInvalidCursor), "value %q: %v", value, err)
	}
}

func TestTrimReportsNextCursorOnlyWhenMoreRowsExist(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{
		{ID: uuid.New(), CreatedAt: base.Add(3 * time.Second)},
		{ID: uuid.New(), CreatedAt: base.Add(2 * time.Second)},
		{ID: uuid.New(), CreatedAt: base.Add(time.Second)},
	}

	page, next := Trim(rows, 2, rowCursor)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	cursor, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, cursor.ID)

	page, next = Trim(rows[:2], 2, rowCursor)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}

func TestScopeWalksEveryRowOnceNewestFirst(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&row{}))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tied := base.Add(10 * time.Second)
	var want []uuid.UUID
	for i := 0; i < 5; i++ {
		r := row{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, conn.Create(&r).Error)
	}
	// Two rows share a timestamp; the id breaks the tie.
	for i := 0; i < 2; i++ {
		r := row{ID: uuid.New(), CreatedAt: tied}
		require.NoError(t, conn.Create(&r).Error)
	}
	var all []row
	require.NoError(t, conn.Order("created_at DESC").Order("id DESC").Find(&all).Error)
	for _, r := range all {
		want = append(want, r.ID)
	}

	var (
		got    []uuid.UUID
		params = Params{Limit: 2}
		pages  int
	)
	for {
		cursor, err := Decode(params.Cursor)
		require.NoError(t, err)
		var rows []row
		require.NoError(t, conn.Scopes(Scope(cursor, params.PageSize())).Find(&rows).Error)
		page, next := Trim(rows, params.PageSize(), rowCursor)
		pages++
		for _, r := range page {
			got = append(got, r.ID)
		}
		if next == "" {
			break
		}
		params.Cursor = next
		require.Less(t, pages, 10, "paging did not terminate")
	}

	assert.Equal(t, want, got)
	assert.Equal(t, 4, pages)
}
