// Package config loads typed configuration structs from the process
// environment.
//
// Values come from environment variables parsed by github.com/caarlos0/env/v11
// using `env` and `envDefault` field tags. Optional .env files are read with
// github.com/joho/godotenv before the first parse; variables already present
// in the environment win over file values.
//
// Each struct type is parsed once and cached by type name, so packages may
// call Load for their own config without coordinating:
//
//	var cfg subscription.StripeConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// A failed parse is not cached; the next Load for that type retries.
// ResetCache and ForceReload exist for tests and for the CLI, which loads an
// explicit --env-file before anything else reads configuration.
package config
