package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no stray .env is loaded.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LIBRARY_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 7, cfg.DueDays)
	assert.Equal(t, 5, cfg.BooksPerPage)
	assert.True(t, cfg.StrictOwnership)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "library.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path = "data/ledger.db"
due_days = 14
strict_ownership = false
log_level = "debug"
`), 0o600))

	t.Setenv("LIBRARY_DUE_DAYS", "10")
	t.Setenv("LIBRARY_BOOKS_PER_PAGE", "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data/ledger.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.DueDays)
	assert.Equal(t, 20, cfg.BooksPerPage)
	assert.False(t, cfg.StrictOwnership)
	assert.Equal(t, Debug, cfg.LogLevel)
	assert.Equal(t, "@hourly", cfg.OverdueSchedule)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("LIBRARY_DB=from-dotenv.db\n"), 0o600))
	// Registers the restore, then leaves the variable unset for godotenv.
	t.Setenv("LIBRARY_DB", "")
	require.NoError(t, os.Unsetenv("LIBRARY_DB"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.db", cfg.DBPath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero due days", "LIBRARY_DUE_DAYS", "0"},
		{"non-numeric due days", "LIBRARY_DUE_DAYS", "week"},
		{"zero page size", "LIBRARY_BOOKS_PER_PAGE", "0"},
		{"bad bool", "LIBRARY_STRICT_OWNERSHIP", "sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
