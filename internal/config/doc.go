// Package config provides loading and environment overlay for hose runtime
// configuration. It exposes a Default() baseline, file loading (JSON or YAML
// by extension), and a HOSE_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/hose.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	if err := config.FromEnv(&cfg); err != nil {
//	    // invalid env values
//	}
package config
