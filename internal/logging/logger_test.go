package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	Close()
	logsDir = ""
	settings = Settings{}
	logLevel = LevelInfo
}

func TestInitialize_ProductionModeIsNoOp(t *testing.T) {
	t.Cleanup(reset)

	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Initialize(dir, Settings{DebugMode: false}))

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "logs dir should not be created in production mode")
	assert.False(t, IsDebugMode())

	l := Get(CategoryTriage)
	l.Info("this goes nowhere") // must not panic
}

func TestInitialize_DebugModeWritesFiles(t *testing.T) {
	t.Cleanup(reset)

	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Initialize(dir, Settings{DebugMode: true, Level: "debug"}))
	assert.True(t, IsDebugMode())

	l := Get(CategoryGuard)
	l.Info("verdict recorded")
	Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "guard") {
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			assert.Contains(t, string(data), "verdict recorded")
			found = true
		}
	}
	assert.True(t, found, "expected a guard log file")
}

func TestCategoryFilter(t *testing.T) {
	t.Cleanup(reset)

	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Initialize(dir, Settings{
		DebugMode:  true,
		Categories: map[string]bool{"store": false},
	}))

	assert.False(t, IsCategoryEnabled(CategoryStore))
	assert.True(t, IsCategoryEnabled(CategoryRetrieval), "unlisted categories default to enabled")
}

func TestLevelGating(t *testing.T) {
	t.Cleanup(reset)

	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Initialize(dir, Settings{DebugMode: true, Level: "warn"}))

	l := Get(CategoryAPI)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("visible warning")
	Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if strings.Contains(e.Name(), "api") {
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			assert.NotContains(t, string(data), "hidden")
			assert.Contains(t, string(data), "visible warning")
		}
	}
}
