// Package config holds the pieces shared by every subsystem configuration:
// the Duration field type and file decoding.
//
// Each subsystem owns a Config struct with a DefaultConfig constructor and a
// Merge method. Loaded configs merge over defaults:
//
//	cfg := manager.DefaultConfig()
//	var loaded manager.Config
//	config.Decode("optenv.yaml", &loaded)
//	cfg.Merge(&loaded)
//
// Merge semantics by field type:
//
//   - Strings: Merge if source is non-empty
//   - Integers: Merge if source is greater than zero
//   - Durations: Merge if source is greater than zero
//   - Nested configs: Recursive merge
//
// Durations are written as Go duration strings ("30s", "1m30s") in both
// JSON and YAML.
package config
