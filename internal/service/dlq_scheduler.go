package service

import (
	"context"
	"time"

	"creditflow/internal/concurrent"
	"creditflow/internal/domain"
	"creditflow/pkg/logger"
	"creditflow/pkg/metrics"
)

// DLQScheduler, vadesi gelen DLQ kayıtlarını periyodik olarak tarar ve işçi
// havuzuna verir. Kayıt başına gerçek iş WebhookProcessor.RetryWebhookEvent
// içinde döner; zamanlayıcı yalnızca dağıtım yapar.
type DLQScheduler struct {
	dlq          domain.WebhookDLQRepository
	processor    domain.WebhookProcessor
	pool         *concurrent.WorkerPool
	scanInterval time.Duration
	logger       logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewDLQScheduler(
	dlq domain.WebhookDLQRepository,
	processor domain.WebhookProcessor,
	workerCount int,
	queueSize int,
	scanInterval time.Duration,
	logger logger.Logger,
) *DLQScheduler {
	if scanInterval <= 0 {
		scanInterval = 30 * time.Second
	}

	s := &DLQScheduler{
		dlq:          dlq,
		processor:    processor,
		scanInterval: scanInterval,
		logger:       logger,
		done:         make(chan struct{}),
	}
	s.pool = concurrent.NewWorkerPool(workerCount, queueSize, s.retryEntry, logger)

	return s
}

func (s *DLQScheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.pool.Start()

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.scanInterval)
		defer ticker.Stop()

		s.logger.Info("DLQ zamanlayıcısı başlatıldı", map[string]interface{}{
			"scan_interval": s.scanInterval.String(),
		})

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("DLQ zamanlayıcısı durduruldu", map[string]interface{}{})
				return
			case <-ticker.C:
				s.scan(ctx)
			}
		}
	}()
}

func (s *DLQScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.pool.Stop()
}

func (s *DLQScheduler) scan(ctx context.Context) {
	// Tur başına en fazla kuyruk kapasitesi kadar kayıt çekilir; artanlar
	// bir sonraki turda gelir.
	entries, err := s.dlq.FindDue(time.Now(), s.pool.QueueCapacity())
	if err != nil {
		s.logger.Error("DLQ taraması başarısız", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if len(entries) == 0 {
		return
	}

	s.logger.Info("Vadesi gelen DLQ kayıtları bulundu", map[string]interface{}{
		"count": len(entries),
	})

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// Dolu kuyruk kayıt kaybettirmez; kayıt bir sonraki turda yine
		// vadede görünür.
		s.pool.Submit(entry)
	}

	metrics.UpdateWorkerPoolQueueSize(s.pool.QueueLength())
}

func (s *DLQScheduler) retryEntry(entry *domain.WebhookDLQEntry) error {
	metrics.RecordDLQRetry()
	return s.processor.RetryWebhookEvent(context.Background(), entry.WebhookEventID)
}

func (s *DLQScheduler) Stats() concurrent.Stats {
	return s.pool.GetStats()
}
