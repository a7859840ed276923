package sync

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/metrics"
	"erp-sync-service/internal/store"
)

type batchExecutor interface {
	ExecuteBatch(ctx context.Context, entity EntityType, cands []Candidate) (*ExecuteSummary, error)
}

// tenantExecutor runs feed batches against one tenant with default options.
type tenantExecutor struct {
	engine   *Engine
	store    store.Store
	tenantID string
}

func (t tenantExecutor) ExecuteBatch(ctx context.Context, entity EntityType, cands []Candidate) (*ExecuteSummary, error) {
	return t.engine.ExecuteBatch(ctx, t.store, t.tenantID, entity, cands, Options{})
}

// WorkerPool shards feed events across workers by external reference, so
// changes to one record are applied in arrival order by a single worker.
// Parts follow their parent job's shard.
type WorkerPool struct {
	workers       []*Worker
	eventChan     <-chan FeedEvent
	exec          batchExecutor
	ctx           context.Context
	cancel        context.CancelFunc
	quit          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	batchSize     int
	flushInterval time.Duration
}

func NewWorkerPool(cfg config.SyncConfig, exec batchExecutor, eventChan <-chan FeedEvent) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	workers := max(cfg.Workers, 1)
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = 500 * time.Millisecond
	}

	pool := &WorkerPool{
		workers:       make([]*Worker, workers),
		eventChan:     eventChan,
		exec:          exec,
		ctx:           ctx,
		cancel:        cancel,
		quit:          make(chan struct{}),
		batchSize:     max(cfg.BatchSize, 1),
		flushInterval: flush,
	}

	for i := 0; i < workers; i++ {
		pool.workers[i] = newWorker(i, pool)
	}

	return pool
}

func (p *WorkerPool) Start() {
	logger.Log.Info("Starting worker pool", zap.Int("workers", len(p.workers)))
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}
	p.wg.Add(1)
	go p.dispatch()
}

// Stop routes already queued events, flushes every worker and waits for them to exit.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
	p.cancel()
	logger.Log.Info("Stopped worker pool")
}

func (p *WorkerPool) dispatch() {
	defer p.wg.Done()
	defer func() {
		for _, w := range p.workers {
			close(w.events)
		}
	}()

	for {
		select {
		case ev, ok := <-p.eventChan:
			if !ok {
				return
			}
			p.route(ev)
		case <-p.quit:
			p.drain()
			return
		}
	}
}

// drain routes events already queued when Stop was called.
func (p *WorkerPool) drain() {
	for {
		select {
		case ev, ok := <-p.eventChan:
			if !ok {
				return
			}
			p.route(ev)
		default:
			return
		}
	}
}

func (p *WorkerPool) route(ev FeedEvent) {
	metrics.FeedEventsTotal.WithLabelValues(string(ev.Entity)).Inc()
	p.workers[p.shard(ev)].events <- ev
}

func (p *WorkerPool) shard(ev FeedEvent) int {
	key := shardKey(ev)
	h := fnv.New32a()
	h.Write([]byte(key.Source))
	h.Write([]byte{0})
	h.Write([]byte(key.ID))
	return int(h.Sum32() % uint32(len(p.workers)))
}

// shardKey is the record's own reference, or for a part still pointing at
// its job by external reference, that job's reference.
func shardKey(ev FeedEvent) externalRef {
	if ev.Entity == EntityPart && !ev.Candidate.present("job_id") {
		if ref := parentRef(ev.Candidate); ref.complete() {
			return ref
		}
	}
	return ev.Candidate.ref()
}

type Worker struct {
	id     int
	pool   *WorkerPool
	events chan FeedEvent
	batch  []FeedEvent
}

func newWorker(id int, pool *WorkerPool) *Worker {
	return &Worker{
		id:     id,
		pool:   pool,
		events: make(chan FeedEvent, pool.batchSize),
	}
}

func (w *Worker) run() {
	defer w.pool.wg.Done()

	ticker := time.NewTicker(w.pool.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.events:
			if !ok {
				w.processBatch() // Flush remaining
				return
			}
			w.batch = append(w.batch, event)
			if len(w.batch) >= w.pool.batchSize {
				w.processBatch()
			}

		case <-ticker.C:
			if len(w.batch) > 0 {
				w.processBatch()
			}
		}
	}
}

func (w *Worker) processBatch() {
	if len(w.batch) == 0 {
		return
	}

	logger.Log.Debug("Processing batch", zap.Int("workerID", w.id), zap.Int("size", len(w.batch)))

	byEntity := make(map[EntityType][]Candidate)
	for _, e := range w.batch {
		byEntity[e.Entity] = append(byEntity[e.Entity], e.Candidate)
	}

	for _, entity := range entityOrder {
		cands := byEntity[entity]
		if len(cands) == 0 {
			continue
		}
		if _, err := w.pool.exec.ExecuteBatch(w.pool.ctx, entity, cands); err != nil {
			logger.Log.Error("Failed to apply feed batch",
				zap.Int("workerID", w.id),
				zap.String("entity_type", string(entity)),
				zap.Int("size", len(cands)),
				zap.Error(err),
			)
		}
	}

	w.batch = w.batch[:0]
}
