package main

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/platform/db"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.New()
	if err != nil {
		zap.NewExample().Sugar().Fatalf("load config: %v", err)
	}
	log, err := logger.New(cfg)
	if err != nil {
		zap.NewExample().Sugar().Fatalf("init logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	m, err := db.NewMigrator(cfg.Database.DSN)
	if err != nil {
		log.Fatalw("init migrator", "error", err)
	}
	defer m.Close()

	switch cmd := os.Args[1]; cmd {
	case "up":
		v, err := m.Up()
		if err != nil {
			log.Fatalw("migrate up", "error", err)
		}
		log.Infow("database is up to date", "version", v)

	case "down":
		if err := m.Down(); err != nil {
			log.Fatalw("migrate down", "error", err)
		}
		log.Infow("rolled back last migration")

	case "goto":
		if len(os.Args) < 3 {
			log.Fatal("goto needs a version")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalw("invalid version", "arg", os.Args[2], "error", err)
		}
		if err := m.Goto(uint(version)); err != nil {
			log.Fatalw("migrate goto", "version", version, "error", err)
		}
		log.Infow("migrated", "version", version)

	case "status":
		v, dirty, err := m.Version()
		if err != nil {
			log.Fatalw("read version", "error", err)
		}
		log.Infow("migration status", "version", v, "dirty", dirty)

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: migrate <command>")
	fmt.Println("commands:")
	fmt.Println("  up        apply all pending migrations")
	fmt.Println("  down      roll back the last migration")
	fmt.Println("  goto N    migrate up or down to version N")
	fmt.Println("  status    print the applied version")
}
