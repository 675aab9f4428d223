// Package config defines configuration for the tilesave CLI.
//
// Configuration is resolved in layers: built-in defaults, then an optional
// YAML file, then TILESAVE_* environment variables, then command-line
// flags. Later layers override earlier ones; see Merge.
package config
