package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fyts.log")

	require.NoError(t, Init("debug", "json", path))
	t.Cleanup(func() { Close() })

	WithField("run_id", "r-1").Info("运动记录已提交")
	Debug("debug line")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"r-1"`)
	assert.Contains(t, string(data), "debug line")
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init("chatty", "text", "stderr"))
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
}

func TestInit_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	assert.Error(t, Init("info", "text", filepath.Join(blocker, "fyts.log")))
}

func TestGet_WithoutInit(t *testing.T) {
	Log = nil
	assert.NotNil(t, WithFields(logrus.Fields{"k": "v"}))
	assert.NotNil(t, Log)
}
