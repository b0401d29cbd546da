package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialize(t *testing.T) {
	tempDir := t.TempDir()
	cfg, err := Initialize(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Reload", func(t *testing.T) {
		reloaded, err := Load(tempDir)
		assert.Nil(t, err)
		assert.Equal(t, cfg.Home, reloaded.Home)
	})

	t.Run("OpenAppLog", func(t *testing.T) {
		fd, err := cfg.OpenAppLog()
		assert.Nil(t, err)
		fd.Close()
	})

	t.Run("ScratchPath", func(t *testing.T) {
		p := cfg.ScratchPath()
		assert.True(t, filepath.IsAbs(p))
		assert.Equal(t, ScratchDirName, filepath.Base(p))
	})

	t.Run("Idempotent", func(t *testing.T) {
		again, err := Initialize(tempDir)
		assert.Nil(t, err)
		assert.Equal(t, cfg.Home, again.Home)
	})
}
