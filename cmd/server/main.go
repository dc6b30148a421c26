package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creditflow/internal/api"
	"creditflow/internal/api/middleware"
	"creditflow/internal/database"
	"creditflow/pkg/factory"
	"creditflow/pkg/tracing"
)

func main() {
	appFactory, err := factory.NewFactory()
	if err != nil {
		fmt.Printf("Factory oluşturulamadı: %v\n", err)
		os.Exit(1)
	}
	defer appFactory.Close()

	log := appFactory.GetLogger()
	cfg := appFactory.GetConfig()
	db := appFactory.GetDB()

	log.Info("Uygulama başlatılıyor", map[string]interface{}{"env": cfg.AppEnv})

	if cfg.Tracing.Enabled {
		shutdownTracer, err := tracing.InitTracer(context.Background(), "creditflow", cfg.Tracing.Endpoint)
		if err != nil {
			log.Fatal("Tracer başlatılamadı", map[string]interface{}{"error": err.Error()})
		}
		defer shutdownTracer(context.Background())
	}

	migrationService := database.NewMigrationService(db, cfg.Database.Driver, log)
	if err := migrationService.RunMigrations(); err != nil {
		log.Fatal("Migrationlar uygulanamadı", map[string]interface{}{"error": err.Error()})
	}

	webhookHandler := api.NewWebhookHandler(appFactory.GetWebhookProcessor(), log)
	creditsHandler := api.NewCreditsHandler(appFactory.GetCreditsService(), log)
	ledgerHandler := api.NewLedgerHandler(appFactory.GetLedgerService(), log)
	paymentHandler := api.NewPaymentHandler(appFactory.GetPaymentService(), log)
	dlqHandler := api.NewDLQHandler(appFactory.GetWebhookDLQRepository(), appFactory.GetWebhookProcessor(), appFactory.GetDLQScheduler(), log)
	healthHandler := api.NewHealthHandler(appFactory, log)

	mux := http.NewServeMux()

	webhookHandler.RegisterRoutes(mux)
	creditsHandler.RegisterRoutes(mux)
	ledgerHandler.RegisterRoutes(mux)
	paymentHandler.RegisterRoutes(mux)
	dlqHandler.RegisterRoutes(mux)
	healthHandler.RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.MetricsMiddleware(handler)
	if cfg.Tracing.Enabled {
		handler = middleware.TracingMiddleware(handler)
	}

	scheduler := appFactory.GetDLQScheduler()
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		log.Info("HTTP sunucusu başlatılıyor", map[string]interface{}{"port": cfg.Server.Port})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP sunucusu başlatılamadı", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Sunucu kapatılıyor...", map[string]interface{}{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Sunucu kapatılırken hata oluştu", map[string]interface{}{"error": err.Error()})
	}

	scheduler.Stop()

	log.Info("Sunucu başarıyla kapatıldı", map[string]interface{}{})
}
