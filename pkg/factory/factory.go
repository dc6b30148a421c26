package factory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"creditflow/internal/config"
	"creditflow/internal/domain"
	"creditflow/internal/repository"
	"creditflow/internal/service"
	"creditflow/internal/signature"
	"creditflow/pkg/cache"
	"creditflow/pkg/logger"
)

type Factory interface {
	GetLogger() logger.Logger
	GetConfig() *config.Config
	GetDB() *sql.DB
	GetRedisClient() *redis.Client
	GetCache() cache.Cache

	GetLedgerRepository() domain.LedgerRepository
	GetCreditRepository() domain.CreditRepository
	GetPaymentRepository() domain.PaymentRepository
	GetWebhookEventRepository() domain.WebhookEventRepository
	GetWebhookDLQRepository() domain.WebhookDLQRepository

	GetLedgerService() domain.LedgerService
	GetCreditsService() domain.CreditsService
	GetPaymentService() domain.PaymentService
	GetWebhookProcessor() domain.WebhookProcessor
	GetDLQScheduler() *service.DLQScheduler

	Close() error
}

type AppFactory struct {
	config      *config.Config
	logger      logger.Logger
	db          *sql.DB
	redisClient *redis.Client
	cache       cache.Cache

	ledgerRepository       domain.LedgerRepository
	creditRepository       domain.CreditRepository
	paymentRepository      domain.PaymentRepository
	webhookEventRepository domain.WebhookEventRepository
	webhookDLQRepository   domain.WebhookDLQRepository

	ledgerService    domain.LedgerService
	creditsService   domain.CreditsService
	paymentService   domain.PaymentService
	webhookProcessor domain.WebhookProcessor
	dlqScheduler     *service.DLQScheduler
}

func NewFactory() (Factory, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.LogLevel(cfg.LogLevel), nil)

	db, err := openDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	factory := &AppFactory{
		config: cfg,
		logger: log,
		db:     db,
	}

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingRedis := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return redisClient.Ping(ctx).Err()
		}
		if err := backoff.Retry(pingRedis, connectBackoff()); err != nil {
			return nil, fmt.Errorf("Redis bağlantısı kurulamadı: %w", err)
		}

		factory.redisClient = redisClient
		factory.cache = cache.NewRedisCache(redisClient, log, "creditflow")
	}

	factory.initRepositories()
	factory.initServices()

	return factory, nil
}

// openDatabase, sürücüye göre DSN kurar ve bağlantıyı backoff ile dener.
// sqlite tek yazıcıya sabitlenir; eşzamanlı mutasyonlar veritabanında
// sıraya girer.
func openDatabase(cfg *config.Config, log logger.Logger) (*sql.DB, error) {
	var dsn string
	switch cfg.Database.Driver {
	case "sqlite3":
		dsn = cfg.Database.Path
	case "postgres":
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Name,
			cfg.Database.SSLMode)
	default:
		return nil, fmt.Errorf("bilinmeyen veritabanı sürücüsü: %s", cfg.Database.Driver)
	}

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("veritabanı bağlantısı kurulamadı: %w", err)
	}

	if cfg.Database.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	if err := backoff.Retry(db.Ping, connectBackoff()); err != nil {
		return nil, fmt.Errorf("veritabanı bağlantısı test edilemedi: %w", err)
	}

	log.Info("Veritabanı bağlantısı kuruldu", map[string]interface{}{
		"driver": cfg.Database.Driver,
	})

	return db, nil
}

func connectBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (f *AppFactory) initRepositories() {
	f.ledgerRepository = repository.NewLedgerRepository(f.db, f.logger)
	f.creditRepository = repository.NewCreditRepository(f.db, f.logger)
	f.paymentRepository = repository.NewPaymentRepository(f.db, f.logger)
	f.webhookEventRepository = repository.NewWebhookEventRepository(f.db, f.logger)
	f.webhookDLQRepository = repository.NewWebhookDLQRepository(f.db, f.logger)
}

func (f *AppFactory) initServices() {
	f.ledgerService = service.NewLedgerService(f.ledgerRepository, f.logger)

	baseCreditsService := service.NewCreditsService(f.creditRepository, f.ledgerService, f.logger)
	if f.cache != nil {
		f.creditsService = service.NewCachedCreditsService(baseCreditsService, f.cache, f.logger)
	} else {
		f.creditsService = baseCreditsService
	}

	f.paymentService = service.NewPaymentService(f.paymentRepository, f.creditsService, f.logger)

	verifier := signature.NewVerifier(
		f.config.Webhook.StripeSecret,
		f.config.Webhook.IyzicoSecret,
		f.config.Webhook.SignatureTolerance,
	)

	f.webhookProcessor = service.NewWebhookProcessorService(
		f.webhookEventRepository,
		f.webhookDLQRepository,
		f.paymentService,
		verifier,
		f.config.DLQ.MaxRetries,
		f.config.DLQ.RetrySchedule,
		f.logger,
	)

	f.dlqScheduler = service.NewDLQScheduler(
		f.webhookDLQRepository,
		f.webhookProcessor,
		f.config.DLQ.WorkerCount,
		f.config.DLQ.QueueSize,
		f.config.DLQ.ScanInterval,
		f.logger,
	)
}

func (f *AppFactory) GetLogger() logger.Logger {
	return f.logger
}

func (f *AppFactory) GetConfig() *config.Config {
	return f.config
}

func (f *AppFactory) GetDB() *sql.DB {
	return f.db
}

func (f *AppFactory) GetRedisClient() *redis.Client {
	return f.redisClient
}

func (f *AppFactory) GetCache() cache.Cache {
	return f.cache
}

func (f *AppFactory) GetLedgerRepository() domain.LedgerRepository {
	return f.ledgerRepository
}

func (f *AppFactory) GetCreditRepository() domain.CreditRepository {
	return f.creditRepository
}

func (f *AppFactory) GetPaymentRepository() domain.PaymentRepository {
	return f.paymentRepository
}

func (f *AppFactory) GetWebhookEventRepository() domain.WebhookEventRepository {
	return f.webhookEventRepository
}

func (f *AppFactory) GetWebhookDLQRepository() domain.WebhookDLQRepository {
	return f.webhookDLQRepository
}

func (f *AppFactory) GetLedgerService() domain.LedgerService {
	return f.ledgerService
}

func (f *AppFactory) GetCreditsService() domain.CreditsService {
	return f.creditsService
}

func (f *AppFactory) GetPaymentService() domain.PaymentService {
	return f.paymentService
}

func (f *AppFactory) GetWebhookProcessor() domain.WebhookProcessor {
	return f.webhookProcessor
}

func (f *AppFactory) GetDLQScheduler() *service.DLQScheduler {
	return f.dlqScheduler
}

func (f *AppFactory) Close() error {
	if f.redisClient != nil {
		f.redisClient.Close()
	}
	return f.db.Close()
}
