// Package config loads and validates the YAML configuration for a
// relay client instance. Values of the form ${VAR} are expanded from
// the environment before parsing.
package config
