// Package config loads relay configuration from YAML.
//
// Values may reference environment variables as ${VAR}; variables can be
// supplied through a .env file loaded with LoadEnv before the YAML is read.
//
//	config.LoadEnv(".env")
//	cfg, err := config.LoadAndValidate("configs/relay.yaml")
package config
