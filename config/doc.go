// Package config loads and validates the flowkit engine configuration.
//
// It uses Viper to read a YAML file found through an afero filesystem,
// godotenv for .env files, and binds prefixed environment variables over
// the file values.
//
// # Usage
//
//	var cfg config.Config
//	if err := config.LoadConfig("flowrun", &cfg); err != nil {
//	    return err
//	}
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// Environment variables use the upper-cased service name as prefix with
// underscore-separated paths (e.g., FLOWRUN_ENGINE_MAX_CONCURRENCY).
package config
