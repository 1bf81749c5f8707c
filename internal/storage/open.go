package storage

import (
	"context"
	"errors"
	"strings"
)

// IsPostgresURL reports whether rawURL selects the Postgres backend.
func IsPostgresURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "postgres://") || strings.HasPrefix(rawURL, "postgresql://")
}

// OpenURL picks a backend from the URL scheme. postgres:// and
// postgresql:// open a PGStore; sqlite://<dir> or a bare directory open a
// SQLite Store in that directory.
func OpenURL(ctx context.Context, rawURL, serviceKey string) (Repository, error) {
	switch {
	case rawURL == "":
		return nil, errors.New("storage url is empty")
	case IsPostgresURL(rawURL):
		return OpenPostgres(ctx, rawURL, serviceKey)
	default:
		return Open(strings.TrimPrefix(rawURL, "sqlite://"))
	}
}
