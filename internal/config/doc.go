// Package config holds the credentials and tunables the bridge needs to talk
// to a remote decision-optimization service.
//
// Credentials are a flat key/value table (for example "service.wml.host").
// They can be built from an in-memory map or loaded from a YAML or CUE file,
// in which case nested mappings are flattened into dotted keys. Values may
// reference environment variables with ${NAME}.
//
// Settings are the typed tunables (polling interval, token refresh rate,
// engine log level, ...) derived from the same table with defaults applied.
package config
