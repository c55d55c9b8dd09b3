// Package config holds process settings and per-provider configuration.
//
// Process settings (wait budget, restart and heartbeat intervals, merge
// priorities, wait sets) are read with viper from codeintel.toml and
// CODEINTEL_* environment variables.
//
// Provider configuration lives in <state_dir>/providers.toml. Each provider
// declares versioned code defaults; at startup Reconcile merges them with the
// stored copy following MAJOR.MINOR.PATCH rules, and StoreWatcher reloads the
// file when it is edited so the registry can restart or reconfigure
// providers (RestartRequired decides which).
package config
