package globalsetting

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/alexscott/userman/internal/db/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(&models.GlobalSetting{})
	require.NoError(t, err, "failed to migrate test database")

	return db
}

func TestGetSet(t *testing.T) {
	db := setupTestDB(t)

	t.Run("nil database", func(t *testing.T) {
		err := Set(nil, "brand", "PBX")
		require.ErrorIs(t, err, ErrDBNil)
	})

	t.Run("empty key", func(t *testing.T) {
		err := Set(db, "", "PBX")
		require.ErrorIs(t, err, ErrKeyEmpty)

		var out string
		_, err = Get(db, "", &out)
		require.ErrorIs(t, err, ErrKeyEmpty)
	})

	t.Run("missing key", func(t *testing.T) {
		var out string
		found, err := Get(db, "nonexistent", &out)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, Set(db, "brand", "PBX"))

		var out string
		found, err := Get(db, "brand", &out)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "PBX", out)
	})

	t.Run("overwrite keeps other keys", func(t *testing.T) {
		require.NoError(t, Set(db, "brand", "VoIP Server"))
		require.NoError(t, Set(db, "hostname", "pbx.local"))

		var out string
		found, err := Get(db, "brand", &out)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "VoIP Server", out)

		all, err := All(db)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("nil value deletes key", func(t *testing.T) {
		require.NoError(t, Set(db, "hostname", nil))

		var out string
		found, err := Get(db, "hostname", &out)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("structured value", func(t *testing.T) {
		type token struct {
			ID    uint64 `json:"id"`
			Valid int64  `json:"valid"`
		}

		in := map[string]token{"abc": {ID: 7, Valid: 12345}}
		require.NoError(t, Set(db, "passresettoken", in))

		out := map[string]token{}
		found, err := Get(db, "passresettoken", &out)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, in, out)
	})
}
