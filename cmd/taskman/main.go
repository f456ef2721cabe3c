package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-taskman"
	"github.com/goliatone/go-taskman/activitymap"
	"github.com/goliatone/go-taskman/persistence"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := taskman.DefaultLogger()

	cfg, err := taskman.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Debug {
		redacted := cfg
		redacted.SigningKey = "***"
		redacted.DatabaseURL = "***"
		logger.Debug("config: %s", print.MaybePrettyJSON(redacted))
	}

	ctx := context.Background()

	db, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := persistence.Migrate(ctx, db); err != nil {
		log.Fatal(err)
	}

	repo := taskman.NewRepositoryManager(db, cfg)
	repo.MustValidate()

	tokens, err := taskman.NewTokenService(cfg, taskman.WithTokenLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	auther := taskman.NewAuthenticator(repo.Users(), tokens, cfg).
		WithLogger(logger).
		WithActivitySink(activitymap.LogSink(logger))

	tasks := taskman.NewTaskService(repo.Tasks(), logger)

	var app *fiber.App
	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "taskman",
			DisableStartupMessage: !cfg.Debug,
			ErrorHandler:          taskman.ErrorHandler(logger),
		}))
		app.Use(recover.New())
		app.Use(fiberlogger.New())
		return app
	})

	taskman.RegisterRoutes(srv.Router(), cfg, auther, tasks,
		taskman.WithControllerLogger(logger),
		taskman.WithControllerDebug(cfg.Debug),
	)

	logger.Info("listening on %s", cfg.Addr)
	srv.Serve(cfg.Addr)

	sig := WaitExitSignal()
	logger.Info("received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("shutdown: %v", err)
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
