package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/cmd"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/config"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
)

func main() {
	// A missing .env is normal; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Commands report the configuration error themselves.
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting invoicectl")

	cmd.Execute()
}
