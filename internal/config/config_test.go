package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangle-network/bls-blueprint/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bls-blueprint.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDecodesValidConfig(t *testing.T) {
	path := writeConfig(t, `
data_dir = "/var/lib/bls"
keystore_uri = "file:///var/lib/bls/keystore"
blueprint_id = 7
service_id = 3
listen_addr = "/ip4/0.0.0.0/tcp/9000"
`)

	env, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/bls", env.DataDir)
	require.Equal(t, uint64(7), env.BlueprintID)
	require.Equal(t, uint64(3), env.ServiceID)
	require.Equal(t, "/ip4/0.0.0.0/tcp/9000", env.ListenAddr)
}

func TestLoadFailsOnMissingRequiredField(t *testing.T) {
	path := writeConfig(t, `
keystore_uri = "file:///var/lib/bls/keystore"
blueprint_id = 7
service_id = 3
listen_addr = "/ip4/0.0.0.0/tcp/9000"
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err)
}

func TestEnvironmentVariableOverridesListenAddr(t *testing.T) {
	path := writeConfig(t, `
data_dir = "/var/lib/bls"
keystore_uri = "file:///var/lib/bls/keystore"
blueprint_id = 7
service_id = 3
listen_addr = "/ip4/0.0.0.0/tcp/9000"
`)

	t.Setenv("BLS_BLUEPRINT_LISTEN_ADDR", "/ip4/0.0.0.0/tcp/9999")

	env, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/ip4/0.0.0.0/tcp/9999", env.ListenAddr)
}
