// Package config loads warden configuration from environment variables with
// optional YAML file defaults.
//
// All settings have built-in defaults. WARDEN_CONFIG_FILE may point at a YAML
// file whose values replace the defaults; WARDEN_* environment variables
// override both. Configuration is validated once at load time.
package config
