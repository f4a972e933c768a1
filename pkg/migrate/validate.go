package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"
)

const (
	versionLayout = "20060102150405"
	maxNameLen    = 60

	markerUp        = "-- +goose Up"
	markerDown      = "-- +goose Down"
	markerStmtBegin = "-- +goose StatementBegin"
	markerStmtEnd   = "-- +goose StatementEnd"
)

// nameVerbs are the leading words a migration name may start with, so the
// history reads as a list of schema actions.
var nameVerbs = []string{"create", "add", "alter", "drop", "rename", "backfill", "index"}

var migrationFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

// migrationFile is one parsed <version>_<name>.sql filename.
type migrationFile struct {
	Filename string
	Version  string
	Name     string
}

func parseMigrationFile(filename string) (migrationFile, error) {
	m := migrationFileRe.FindStringSubmatch(filename)
	if m == nil {
		return migrationFile{}, fmt.Errorf("%q: want <YYYYMMDDHHMMSS>_<verb>_<subject>.sql", filename)
	}
	f := migrationFile{Filename: filename, Version: m[1], Name: m[2]}
	if _, err := time.Parse(versionLayout, f.Version); err != nil {
		return migrationFile{}, fmt.Errorf("%q: version %s is not a timestamp", filename, f.Version)
	}
	if err := checkName(f.Name); err != nil {
		return migrationFile{}, fmt.Errorf("%q: %w", filename, err)
	}
	return f, nil
}

func checkName(name string) error {
	if len(name) > maxNameLen {
		return fmt.Errorf("name longer than %d characters", maxNameLen)
	}
	verb, subject, _ := strings.Cut(name, "_")
	if subject == "" {
		return fmt.Errorf("name %q needs a subject after the verb", name)
	}
	for _, v := range nameVerbs {
		if verb == v {
			return nil
		}
	}
	return fmt.Errorf("name %q must start with one of %s", name, strings.Join(nameVerbs, ", "))
}

// checkBody requires an Up section ahead of a Down section and balanced
// statement blocks.
func checkBody(body string) error {
	up := strings.Index(body, markerUp)
	down := strings.Index(body, markerDown)
	switch {
	case up < 0:
		return fmt.Errorf("missing %q", markerUp)
	case down < 0:
		return fmt.Errorf("missing %q", markerDown)
	case down < up:
		return errors.New("down section precedes up section")
	}
	open := 0
	for _, line := range strings.Split(body, "\n") {
		switch strings.TrimSpace(line) {
		case markerStmtBegin:
			if open > 0 {
				return errors.New("nested StatementBegin")
			}
			open++
		case markerStmtEnd:
			if open == 0 {
				return errors.New("StatementEnd without StatementBegin")
			}
			open--
		case markerDown:
			if open > 0 {
				return errors.New("StatementBegin left open in up section")
			}
		}
	}
	if open > 0 {
		return errors.New("StatementBegin left open in down section")
	}
	return nil
}

// ValidateFS checks every .sql file in the root of fsys.
func ValidateFS(fsys fs.FS) error {
	_, err := scanMigrations(fsys)
	return err
}

// scanMigrations parses and checks the .sql files in fsys, returning them in
// version order.
func scanMigrations(fsys fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []migrationFile
	byVersion := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		f, err := parseMigrationFile(e.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid migration %w", err)
		}
		if prev, ok := byVersion[f.Version]; ok {
			return nil, fmt.Errorf("version %s used by %q and %q", f.Version, prev, f.Filename)
		}
		byVersion[f.Version] = f.Filename

		body, err := fs.ReadFile(fsys, f.Filename)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", f.Filename, err)
		}
		if err := checkBody(string(body)); err != nil {
			return nil, fmt.Errorf("migration %q: %w", f.Filename, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// ValidateDir runs ValidateFS against an on-disk directory.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}
