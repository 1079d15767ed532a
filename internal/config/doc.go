// Package config loads conduit server settings from environment variables
// via struct tags, with development-friendly defaults. Load parses and
// validates in one step:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
