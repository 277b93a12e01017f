// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config reads the declarative engine configuration.
//
// Sources (YAML documents, environment variables, plain maps) are applied in
// order into a single nested store, later sources overriding earlier ones,
// and the result is decoded into a struct tagged with `config`:
//
//	m, err := config.Read(
//	    config.FromYaml(f),
//	    config.FromEnv("ANVIL_"),
//	)
//	var cfg server.Config
//	err = m.Unmarshal(&cfg)
//
// Environment variables map onto nested keys by splitting on a double
// underscore, so ANVIL_SOCKET__READ_TIMEOUT=5s sets socket.read_timeout.
package config
