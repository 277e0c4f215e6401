package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	base := "cache:\n  type: memory\ndatabase:\n  sqlite:\n    path: \"" + yamlSafePath(dir) + "/meta.db\"\n"
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: INFO\n"+base), 0644))

	reloaded := make(chan *Config, 4)
	require.NoError(t, Watch(path, func(cfg *Config) { reloaded <- cfg }))

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: DEBUG\n"+base), 0644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, "DEBUG", cfg.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration change not observed")
	}
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "absent.yaml"), func(*Config) {})
	require.Error(t, err)
}
