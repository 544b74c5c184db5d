package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/db"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/migrate"
)

// gooseCommands are passed straight through to goose.
var gooseCommands = map[string]bool{
	"up":     true,
	"down":   true,
	"status": true,
	"redo":   true,
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|redo|version|create|validate")
	dir := flag.String("dir", "", "migrations directory (defaults to the embedded set, or "+migrate.DefaultDir+" for create)")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	migrations := migrate.Migrations()
	if *dir != "" {
		migrations = os.DirFS(*dir)
	}

	// create and validate only touch the filesystem.
	switch *cmd {
	case "create":
		if *name == "" {
			fail(logg, context.Background(), "create", errors.New("missing -name"))
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			fail(logg, context.Background(), "create", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.Validate(migrations); err != nil {
			fail(logg, context.Background(), "validate", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail(logg, context.Background(), "config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(logg, ctx, "database", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail(logg, ctx, "sql database", err)
	}

	switch {
	case gooseCommands[*cmd]:
		err = migrate.Run(ctx, sqlDB, migrations, *cmd, os.Stdout)
	case *cmd == "version":
		if *version == "" {
			err = errors.New("missing -version")
			break
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, migrations, *version)
	default:
		err = fmt.Errorf("unknown -cmd value %q", *cmd)
	}
	if err != nil {
		fail(logg, ctx, *cmd, err)
	}
	logg.Info(ctx, "migrate finished")
}

func fail(logg *logger.Logger, ctx context.Context, step string, err error) {
	logg.Error(ctx, fmt.Sprintf("migrate %s failed", step), err)
	os.Exit(1)
}
