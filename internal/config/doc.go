// Package config provides configuration loading and validation for the
// transcription service. It handles YAML-based configuration with struct
// validation, .env bootstrapping, and environment variable overrides.
package config
