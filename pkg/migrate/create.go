package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nameDisallowedRe = regexp.MustCompile(`[^a-z0-9]+`)

const newMigrationBody = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- undo %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes a goose migration skeleton to
// <dir>/<YYYYMMDDHHMMSS>_<name>.sql and returns its path. The name is folded
// to snake case and must start with a schema verb such as add or create. The
// new version must sort after every migration already in dir.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	slug := migrationSlug(name)
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := checkName(slug); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	existing, err := scanMigrations(os.DirFS(dir))
	if err != nil {
		return "", fmt.Errorf("existing migrations: %w", err)
	}
	version := now.UTC().Format(versionLayout)
	for _, f := range existing {
		if f.Version >= version {
			return "", fmt.Errorf("version %s does not sort after %q", version, f.Filename)
		}
	}

	path := filepath.Join(dir, version+"_"+slug+".sql")
	if err := os.WriteFile(path, []byte(fmt.Sprintf(newMigrationBody, slug)), 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return path, nil
}

// migrationSlug lowercases name and collapses every run of other characters
// into a single underscore.
func migrationSlug(name string) string {
	slug := nameDisallowedRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}
