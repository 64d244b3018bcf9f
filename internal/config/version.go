package config

// Version is the threadline binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/threadline/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
