// Package config loads driver and client configuration.
//
// Defaults come from Default(), optionally overlaid by a JSON file (Load) and
// STRAND_* environment variables (FromEnv). Size-valued settings accept
// human-entered suffixed forms (64K, 16M) in environment variables and CLI
// flags; the JSON file uses plain byte counts.
package config
