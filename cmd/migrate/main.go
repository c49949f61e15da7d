// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate -direction up|down|version.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"mobiperf/backend/internal/config"
	"mobiperf/backend/internal/db/migrate"
	"mobiperf/backend/internal/platform/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down or version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.Level(), cfg.Production())
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	if *direction == "version" {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			logger.Error("migrate version", "error", err)
			os.Exit(1)
		}
		fmt.Printf("version %d dirty=%t\n", v, dirty)
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema already at target version", "direction", *direction)
			return
		}
		logger.Error("migrate", "direction", *direction, "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "direction", *direction)
}
