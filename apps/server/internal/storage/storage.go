// Package storage picks the deepwell store backend from a database URL.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"deepwell-rpc/apps/server/internal/storage/postgres"
	"deepwell-rpc/apps/server/internal/storage/sqlite"
	"deepwell-rpc/deepwell"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Resolve maps a database URL to a backend and the target that backend opens.
//
//	memory                          in-process maps
//	postgres://... postgresql://... PostgreSQL, the URL is the DSN
//	sqlite://path, file:..., path   SQLite
func Resolve(databaseURL string) (backend, target string, err error) {
	raw := strings.TrimSpace(databaseURL)
	lower := strings.ToLower(raw)

	switch {
	case raw == "":
		return "", "", fmt.Errorf("empty database url")
	case lower == BackendMemory || lower == "mem":
		return BackendMemory, "", nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return BackendPostgres, raw, nil
	case strings.HasPrefix(lower, "sqlite://"):
		path := raw[len("sqlite://"):]
		if path == "" {
			return "", "", fmt.Errorf("sqlite url %q has no path", raw)
		}
		return BackendSQLite, path, nil
	case strings.HasPrefix(lower, "file:"):
		return BackendSQLite, raw, nil
	case strings.Contains(lower, "://"):
		return "", "", fmt.Errorf("unsupported database url scheme in %q (supported: memory, postgres://, sqlite://)", raw)
	default:
		return BackendSQLite, raw, nil
	}
}

// Open connects to the store named by databaseURL, running schema migrations for
// SQL backends.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (deepwell.Store, string, error) {
	backend, target, err := Resolve(databaseURL)
	if err != nil {
		return nil, "", err
	}
	log = log.With().Str("component", "storage").Str("backend", backend).Logger()

	switch backend {
	case BackendMemory:
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return deepwell.NewMemoryStore(), backend, nil
	case BackendSQLite:
		store, err := sqlite.Open(ctx, target, log)
		if err != nil {
			return nil, backend, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, backend, nil
	case BackendPostgres:
		store, err := postgres.Open(ctx, target, log)
		if err != nil {
			return nil, backend, fmt.Errorf("open postgres store: %w", err)
		}
		return store, backend, nil
	default:
		return nil, backend, fmt.Errorf("unknown storage backend %q", backend)
	}
}
