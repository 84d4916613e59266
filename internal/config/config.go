// Package config loads this service's process-wide environment from a TOML
// file, with environment-variable overrides, in the same idiom drand uses
// for its own TOML-driven configuration (internal/drand-cli/proposal_file.go
// decodes its proposal files the same way, via toml.DecodeFile).
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/tangle-network/bls-blueprint/common/bls"
)

// Environment is this service's equivalent of a BlueprintEnvironment: the
// handful of process-wide settings every job needs, per SPEC_FULL.md §6.2.
type Environment struct {
	DataDir     string `toml:"data_dir"`
	KeystoreURI string `toml:"keystore_uri"`
	BlueprintID uint64 `toml:"blueprint_id"`
	ServiceID   uint64 `toml:"service_id"`
	ListenAddr  string `toml:"listen_addr"`
}

// Load decodes path as TOML into an Environment, then applies any
// BLS_BLUEPRINT_* environment-variable overrides, and fails fast (a
// ContextError, per spec.md §6) if any required field is still empty/zero
// afterward.
func Load(path string) (Environment, error) {
	var env Environment
	if _, err := toml.DecodeFile(path, &env); err != nil {
		return Environment{}, bls.Wrap(bls.ErrContext, "failed to decode config file %s: %v", path, err)
	}

	applyOverrides(&env)

	if err := env.validate(); err != nil {
		return Environment{}, err
	}
	return env, nil
}

func applyOverrides(env *Environment) {
	fields := []struct {
		envVar string
		target *string
	}{
		{"BLS_BLUEPRINT_DATA_DIR", &env.DataDir},
		{"BLS_BLUEPRINT_KEYSTORE_URI", &env.KeystoreURI},
		{"BLS_BLUEPRINT_LISTEN_ADDR", &env.ListenAddr},
	}
	for _, f := range fields {
		if v, ok := os.LookupEnv(f.envVar); ok && v != "" {
			*f.target = v
		}
	}
}

func (env Environment) validate() error {
	switch {
	case env.DataDir == "":
		return bls.Wrap(bls.ErrContext, "config: data_dir is required")
	case env.KeystoreURI == "":
		return bls.Wrap(bls.ErrContext, "config: keystore_uri is required")
	case env.ListenAddr == "":
		return bls.Wrap(bls.ErrContext, "config: listen_addr is required")
	case env.BlueprintID == 0:
		return bls.Wrap(bls.ErrContext, "config: blueprint_id is required")
	case env.ServiceID == 0:
		return bls.Wrap(bls.ErrContext, "config: service_id is required")
	}
	return nil
}
