package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are written during development.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var bundled embed.FS

// Migrations returns the SQL migrations compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(bundled, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func newProvider(db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if fsys == nil {
		fsys = Migrations()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Run applies command (up, down, redo or status) and writes one line per
// migration touched to out.
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, command string, out io.Writer) error {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return err
	}
	if out == nil {
		out = io.Discard
	}

	var results []*goose.MigrationResult
	switch command {
	case "up":
		results, err = provider.Up(ctx)
	case "down":
		var res *goose.MigrationResult
		if res, err = provider.Down(ctx); res != nil {
			results = append(results, res)
		}
	case "redo":
		var down, up *goose.MigrationResult
		if down, err = provider.Down(ctx); err == nil {
			up, err = provider.UpByOne(ctx)
		}
		for _, res := range []*goose.MigrationResult{down, up} {
			if res != nil {
				results = append(results, res)
			}
		}
	case "status":
		return printStatus(ctx, provider, out)
	default:
		return fmt.Errorf("unsupported goose command %q", command)
	}
	for _, res := range results {
		fmt.Fprintln(out, res.String())
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

func printStatus(ctx context.Context, provider *goose.Provider, out io.Writer) error {
	statuses, err := provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	for _, st := range statuses {
		applied := "pending"
		if st.State == goose.StateApplied {
			applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "%-24s %s\n", applied, st.Source.Path)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to target (YYYYMMDDHHMMSS).
func MigrateToVersion(ctx context.Context, db *sql.DB, fsys fs.FS, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	provider, err := newProvider(db, fsys)
	if err != nil {
		return err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < version:
		_, err = provider.UpTo(ctx, version)
	case current > version:
		_, err = provider.DownTo(ctx, version)
	}
	if err != nil {
		return fmt.Errorf("goose %d -> %d: %w", current, version, err)
	}
	return nil
}
