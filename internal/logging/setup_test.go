package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleOnly(t *testing.T) {
	log, cleanup, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	defer cleanup()

	log.Debug().Msg("console only")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "berth.log")

	log, cleanup, err := New(Config{
		Level:  "info",
		Format: "json",
		File: FileConfig{
			Enabled:    true,
			Path:       path,
			MaxSize:    1,
			MaxBackups: 1,
			MaxAge:     1,
		},
	})
	require.NoError(t, err)

	log.Info().Str("container", "db").Msg("hello file")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"container":"db"`)
	assert.Contains(t, string(data), "hello file")

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestNew_FileEnabledWithoutPath(t *testing.T) {
	_, _, err := New(Config{File: FileConfig{Enabled: true}})
	assert.Error(t, err)
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "events.log")

	sink, err := RotatingFile(FileConfig{Enabled: true, Path: path, MaxSize: 1})
	require.NoError(t, err)

	_, err = sink.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func TestRotatingFile_RequiresPath(t *testing.T) {
	_, err := RotatingFile(FileConfig{Enabled: true})
	assert.Error(t, err)
}
