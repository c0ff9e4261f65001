package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

const versionDigits = 14

// Migration names start with one of these verbs, e.g. create_orders or
// add_orders_rating.
var migrationVerbs = []string{"create", "add", "alter", "drop", "backfill", "rename"}

var fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z][a-z0-9_]*)\.sql$`)

// ValidateDir checks the migrations on disk under dir.
func ValidateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file at the root of fsys and reports all
// problems at once: file naming, duplicate versions, and goose annotations.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var errs error
	seen := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		name := e.Name()
		version, label, err := splitFileName(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if prev, ok := seen[version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name))
		}
		seen[version] = name
		if err := checkLabel(label); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("migration %q: %w", name, err))
		}

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		if err := checkAnnotations(string(body)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("migration %q: %w", name, err))
		}
	}
	return errs
}

// latestVersion returns the highest version in fsys, 0 when there is none.
func latestVersion(fsys fs.FS) (int64, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return 0, err
	}
	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if version, _, err := splitFileName(e.Name()); err == nil {
			versions = append(versions, version)
		}
	}
	if len(versions) == 0 {
		return 0, nil
	}
	sort.Strings(versions)
	return ParseVersion(versions[len(versions)-1])
}

func splitFileName(name string) (version, label string, err error) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_<verb>_<subject>.sql)", name)
	}
	return m[1], m[2], nil
}

func checkLabel(label string) error {
	verb, subject, _ := strings.Cut(label, "_")
	if subject == "" {
		return fmt.Errorf("name %q needs a subject after the verb", label)
	}
	for _, allowed := range migrationVerbs {
		if verb == allowed {
			return nil
		}
	}
	return fmt.Errorf("name %q must start with one of %s", label, strings.Join(migrationVerbs, ", "))
}

func checkAnnotations(body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf(`missing "-- +goose Up"`)
	case down < 0:
		return fmt.Errorf(`missing "-- +goose Down"`)
	case down < up:
		return fmt.Errorf(`"-- +goose Down" must follow "-- +goose Up"`)
	}
	begins := strings.Count(body, "-- +goose StatementBegin")
	ends := strings.Count(body, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("unbalanced StatementBegin/StatementEnd (%d/%d)", begins, ends)
	}
	return nil
}
