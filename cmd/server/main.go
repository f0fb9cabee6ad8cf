package main

import (
	"os"

	"github.com/clubstack/memberhub/internal/config"
	"github.com/clubstack/memberhub/internal/services"
	"github.com/clubstack/memberhub/internal/store"
	"github.com/clubstack/memberhub/internal/utils"
	"github.com/clubstack/memberhub/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Mode == "debug" {
		logger.Init("debug")
	} else {
		logger.Init("info")
	}

	utils.SetJWTSecret(cfg.JWT.Secret)

	st, err := openStore(&cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to open record store: %v", err)
	}

	emailService := services.NewEmailService(&cfg.SMTP)

	// With Redis the status mail goes through the queue; otherwise inline.
	var notifier services.Notifier
	var worker *services.Worker
	if cfg.Redis.Enabled {
		notifier = services.NewQueuedNotifier(&cfg.Redis)
		worker = services.NewWorker(&cfg.Redis, emailService)
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start notification worker: %v", err)
		}
		defer worker.Stop()
	} else {
		notifier = services.NewEmailNotifier(emailService)
	}

	alloc := services.NewAllocationService(st, notifier)

	if cfg.Audit.Enabled {
		auditor := services.NewAuditor(st, cfg.Audit.Cron)
		auditor.Start()
		defer auditor.Stop()
	}

	gin.SetMode(cfg.Server.Mode)
	r := setupRouter(st, alloc)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	logger.Info().Str("addr", addr).Msg("memberhub listening")
	if err := r.Run(addr); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
}

// openStore selects the record store backend. "memory" keeps everything
// in-process for local development; anything else goes through SQL.
func openStore(cfg *config.DatabaseConfig) (store.Store, error) {
	if cfg.Driver == "memory" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenSQL(cfg)
}
