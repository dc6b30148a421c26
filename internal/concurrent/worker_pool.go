package concurrent

import (
	"context"
	"sync"
	"time"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type RetryProcessor = func(entry *domain.WebhookDLQEntry) error

// WorkerPool, DLQ tarama turlarında bulunan kayıtları sınırlı sayıda işçiyle
// tekrar oynatır. Kuyruk doluysa kayıt reddedilir; bir sonraki tarama turu
// kaydı yeniden bulur, dolayısıyla reddetmek kayıp değildir.
type WorkerPool struct {
	numWorkers     int
	jobQueue       chan *domain.WebhookDLQEntry
	processor      RetryProcessor
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	logger         logger.Logger
	started        bool
	mutex          sync.Mutex
	stats          statsCollector
}

func NewWorkerPool(numWorkers int, queueSize int, processor RetryProcessor, logger logger.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers:     numWorkers,
		jobQueue:       make(chan *domain.WebhookDLQEntry, queueSize),
		processor:      processor,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
		started:        false,
	}
}

func (wp *WorkerPool) Start() {
	wp.mutex.Lock()
	defer wp.mutex.Unlock()

	if wp.started {
		return
	}

	wp.logger.Info("İşçi havuzu başlatılıyor", map[string]interface{}{
		"num_workers": wp.numWorkers,
		"queue_size":  cap(wp.jobQueue),
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		workerID := i
		go func() {
			defer wp.wg.Done()
			wp.worker(workerID)
		}()
	}

	wp.started = true
}

func (wp *WorkerPool) Stop() {
	wp.mutex.Lock()
	if !wp.started {
		wp.mutex.Unlock()
		return
	}
	wp.started = false
	wp.mutex.Unlock()

	wp.logger.Info("İşçi havuzu durduruluyor", map[string]interface{}{})
	wp.cancel()
	close(wp.jobQueue)
	wp.wg.Wait()
}

func (wp *WorkerPool) Submit(entry *domain.WebhookDLQEntry) bool {
	wp.mutex.Lock()
	if !wp.started {
		wp.mutex.Unlock()
		return false
	}
	wp.mutex.Unlock()

	// Non-blocking send
	select {
	case wp.jobQueue <- entry:
		wp.stats.markDispatched()
		return true
	default:
		wp.stats.markRejected()
		wp.logger.Warn("Tekrar deneme kuyruğu dolu, kayıt sonraki turu bekleyecek", map[string]interface{}{
			"dlq_entry_id": entry.ID,
		})
		return false
	}
}

func (wp *WorkerPool) worker(id int) {
	log := wp.logger.WithFields(map[string]interface{}{"worker_id": id})
	log.Info("İşçi başlatıldı", map[string]interface{}{})

	for {
		select {
		case <-wp.ctx.Done():
			log.Info("İşçi durduruldu", map[string]interface{}{})
			return
		case entry, ok := <-wp.jobQueue:
			if !ok {
				log.Info("İş kuyruğu kapatıldı, işçi durduruluyor", map[string]interface{}{})
				return
			}

			startTime := time.Now()
			err := wp.processor(entry)
			processingTime := time.Since(startTime)

			if err != nil {
				wp.stats.markFailed()
				log.Error("Tekrar deneme başarısız oldu", map[string]interface{}{
					"dlq_entry_id":     entry.ID,
					"webhook_event_id": entry.WebhookEventID,
					"error":            err.Error(),
					"processing_time":  processingTime.String(),
				})
			} else {
				wp.stats.markCompleted(processingTime)
				log.Info("Tekrar deneme tamamlandı", map[string]interface{}{
					"dlq_entry_id":     entry.ID,
					"webhook_event_id": entry.WebhookEventID,
					"processing_time":  processingTime.String(),
				})
			}
		}
	}
}

func (wp *WorkerPool) GetStats() Stats {
	return wp.stats.snapshot()
}

func (wp *WorkerPool) QueueLength() int {
	return len(wp.jobQueue)
}

func (wp *WorkerPool) QueueCapacity() int {
	return cap(wp.jobQueue)
}
