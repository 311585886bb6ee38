// Package config handles configuration loading for timekeeper.
//
// # Overview
//
// Configuration is read from YAML, or TOML when the file ends in .toml.
// ${VAR} references are expanded from the environment before parsing, so
// secrets such as the Matrix access token can stay out of the file.
//
// # Backends
//
//   - matrix: rooms on a homeserver; requires matrix.homeserver,
//     matrix.user_id, and matrix.access_token
//   - sqlite: a local database at database.path
//   - memory: nothing persisted, for trying things out
//
// # Defaults
//
// Missing values are filled in before validation: sqlite backend,
// ./timekeeper.db, Local timezone, a 10m dedupe TTL, "!" command prefix,
// and text logging at info level.
//
// # Usage
//
//	cfg, err := config.Load("timekeeper.yaml")
//	if err != nil {
//	    return err
//	}
//	loc := cfg.Location
package config
