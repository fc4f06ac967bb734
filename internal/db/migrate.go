package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/crewdeck/crewdeck/internal/config"
)

// RunMigrate runs one schema migration command against the configured
// database. migrationsFS must hold the .sql files at its root. Commands are
// "up", "down", "version", and "force N".
func RunMigrate(logger *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS, command string, args []string) error {
	if logger == nil {
		logger = slog.Default()
	}

	var version int
	switch command {
	case "up", "down", "version":
	case "force":
		if len(args) == 0 {
			return fmt.Errorf("force requires a version number argument")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		version = v
	default:
		return fmt.Errorf("unknown migrate command: %s (use: up, down, version, force)", command)
	}

	source, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, DSN(cfg))
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()
	m.Log = slogPrintf{logger}

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "force":
		err = m.Force(version)
	case "version":
		ver, dirty, verr := m.Version()
		if verr != nil {
			return fmt.Errorf("migrate version: %w", verr)
		}
		logger.Info("schema version", slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))
		return nil
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", command, err)
	}

	ver, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("migrate version: %w", verr)
	}
	logger.Info("migration complete",
		slog.String("command", command),
		slog.Uint64("version", uint64(ver)),
		slog.Bool("dirty", dirty))
	return nil
}

// slogPrintf adapts slog to golang-migrate's Logger interface.
type slogPrintf struct {
	logger *slog.Logger
}

func (l slogPrintf) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l slogPrintf) Verbose() bool { return false }
