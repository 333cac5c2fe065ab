package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/factory"
	"github.com/html-librarian/mig-catalog/internal/handler"
	"github.com/html-librarian/mig-catalog/internal/util"
)

const serviceName = "mig-catalog-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet, stderr is all we have.
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	f, err := factory.New(cfg)
	if err != nil {
		util.Fatal("failed to initialize dependencies", util.ErrorField(err))
	}
	defer f.Close()

	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		util.Info("server starting",
			util.String("environment", cfg.Environment),
			util.String("address", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("server failed to start", util.ErrorField(err))
		}
	}()

	waitForShutdown(f, server)
}

func setupRouter(f *factory.Factory) http.Handler {
	logger := util.Get()

	checks := make(map[string]handler.HealthCheckFunc)
	for name, check := range f.HealthChecks() {
		checks[name] = check
	}

	return handler.NewRouter(handler.RouterDeps{
		Config:      f.Config(),
		Auth:        handler.NewAuthHandler(f.AuthService(), f.UserService(), logger),
		Users:       handler.NewUserHandler(f.UserService(), logger),
		Items:       handler.NewItemHandler(f.ItemService(), logger),
		Orders:      handler.NewOrderHandler(f.OrderService(), logger),
		Articles:    handler.NewArticleHandler(f.ArticleService(), logger),
		Health:      handler.NewHealthHandler(serviceName, checks, logger),
		Limiter:     f.RateLimiter(),
		SecurityMgr: f.SecurityManager(),
		EventSink:   f.AuditService(),
		Tokens:      f.TokenService(),
		Logger:      logger,
	})
}

func waitForShutdown(f *factory.Factory, server *http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	util.Info("received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("server shutdown completed")
	}

	f.Close()
}
