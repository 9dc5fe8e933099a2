package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bareos/bvfs/internal/catalog"
	"github.com/bareos/bvfs/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bvfsd.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, `
catalog {
  dsn = "file:/var/lib/bareos/bareos.db"
}
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file:/var/lib/bareos/bareos.db", cfg.Catalog.DSN)
	assert.Equal(t, uint32(1000), cfg.DefaultLimit(1000))
}

func TestLoadWithOverridesAndLimit(t *testing.T) {
	path := writeConfig(t, `
catalog {
  dsn           = "file::memory:"
  default_limit = 250
}

template_override "bvfs_lsdirs_4" {
  body = "SELECT 1"
}
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), cfg.DefaultLimit(1000))
	require.Len(t, cfg.TemplateOverrides, 1)
	assert.Equal(t, "bvfs_lsdirs_4", cfg.TemplateOverrides[0].Name)
}

func TestApplyTemplateOverrides(t *testing.T) {
	path := writeConfig(t, `
catalog {
  dsn = "file::memory:"
}

template_override "bvfs_lock_pathhierarchy_0" {
  body = "SELECT 42"
}
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	gw, err := catalog.Open(context.Background(), "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	cfg.ApplyTemplateOverrides(gw)
	rendered, err := gw.Template(catalog.TmplLockHierarchy, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 42", rendered)
}

func TestLoadMissingDSNFails(t *testing.T) {
	path := writeConfig(t, `
catalog {
  dsn = ""
}
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}
