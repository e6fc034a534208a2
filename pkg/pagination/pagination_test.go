package pagination

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-3))
	require.Equal(t, 10, NormalizeLimit(10))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorSurvivesEncoding(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.FixedZone("IST", 19800))
	encoded := EncodeCursor(Cursor{CreatedAt: created, ID: "ord_5f2c"})
	require.NotContains(t, encoded, "=")

	decoded, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	require.True(t, created.Equal(decoded.CreatedAt))
	require.Equal(t, time.UTC, decoded.CreatedAt.Location())
	require.Equal(t, "ord_5f2c", decoded.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	for _, bad := range []string{
		"%%%",
		enc("not json"),
		enc(`{"t":"yesterday","id":"ord_1"}`),
		enc(`{"t":"2026-01-01T00:00:00Z","id":" "}`),
		enc(`{"id":"ord_1"}`),
	} {
		_, err := ParseCursor(bad)
		require.ErrorIs(t, err, ErrBadCursor, bad)
	}
}

type pageRow struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time
}

func TestFindWalksPagesNewestFirst(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&pageRow{}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, db.Create(&pageRow{ID: fmt.Sprintf("r%d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}).Error)
	}
	key := func(r pageRow) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }

	var seen []string
	params := Params{Limit: 2}
	for page := 0; ; page++ {
		require.Less(t, page, 5)
		rows, next, err := Find(db.Model(&pageRow{}), params, key)
		require.NoError(t, err)
		for _, r := range rows {
			seen = append(seen, r.ID)
		}
		if next == "" {
			break
		}
		params.Cursor = next
	}
	require.Equal(t, []string{"r4", "r3", "r2", "r1", "r0"}, seen)

	_, _, err = Find(db.Model(&pageRow{}), Params{Cursor: "%%%"}, key)
	require.ErrorIs(t, err, ErrBadCursor)
}
