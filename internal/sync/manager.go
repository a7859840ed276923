package sync

import (
	"context"
	"fmt"
	"sync"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/database"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/metrics"
	"erp-sync-service/internal/store"
)

const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// ManagerStatus reports the staging feed and the last snapshot import.
type ManagerStatus struct {
	Status            string          `json:"status"`
	StagingEnabled    bool            `json:"staging_enabled"`
	SnapshotRunning   bool            `json:"snapshot_running"`
	LastSnapshot      *SnapshotReport `json:"last_snapshot,omitempty"`
	LastSnapshotError string          `json:"last_snapshot_error,omitempty"`
}

// feedListener is the source of realtime staging row changes.
type feedListener interface {
	Start() error
	Stop()
	Events() <-chan FeedEvent
}

// Manager owns staging ingestion: the realtime binlog feed and snapshot imports.
type Manager struct {
	cfg            *config.Config
	engine         *Engine
	stores         store.Provider
	stagingDB      *database.Database
	importer       *SnapshotImporter
	binlogListener feedListener
	newListener    func(config.StagingConfig) (feedListener, error)
	workerPool     *WorkerPool
	mu             sync.Mutex
	status         string
	snapshotMu     sync.Mutex
	snapshotActive bool
	lastSnapshot   *SnapshotReport
	lastErr        string
}

func NewManager(ctx context.Context, cfg *config.Config, engine *Engine, stores store.Provider) (*Manager, error) {
	var stagingDB *database.Database
	if cfg.Staging.Enabled {
		db, err := database.NewDatabase(ctx, cfg.Staging.Connection)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to staging db: %w", err)
		}
		stagingDB = db
	}
	return newManager(cfg, engine, stores, stagingDB), nil
}

func newManager(cfg *config.Config, engine *Engine, stores store.Provider, stagingDB *database.Database) *Manager {
	m := &Manager{
		cfg:       cfg,
		engine:    engine,
		stores:    stores,
		stagingDB: stagingDB,
		status:    StateIdle,
		newListener: func(cfg config.StagingConfig) (feedListener, error) {
			return NewBinlogListener(cfg)
		},
	}
	if stagingDB != nil {
		m.importer = NewSnapshotImporter(stagingDB, cfg.Staging, cfg.Sync.BatchSize, engine, stores)
	}
	return m
}

// Start begins the realtime staging feed.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stagingDB == nil {
		return ErrStagingDisabled
	}
	if m.status == StateRunning {
		return ErrFeedRunning
	}

	logger.Log.Info("Starting sync manager")

	listener, err := m.newListener(m.cfg.Staging)
	if err != nil {
		return err
	}

	exec := tenantExecutor{
		engine:   m.engine,
		store:    m.stores.ForTenant(m.cfg.Staging.TenantID),
		tenantID: m.cfg.Staging.TenantID,
	}
	pool := NewWorkerPool(m.cfg.Sync, exec, listener.Events())
	pool.Start()

	if err := listener.Start(); err != nil {
		listener.Stop()
		pool.Stop()
		return err
	}

	m.binlogListener = listener
	m.workerPool = pool
	m.status = StateRunning
	return nil
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StateRunning {
		return
	}

	logger.Log.Info("Stopping sync manager")

	if m.binlogListener != nil {
		m.binlogListener.Stop()
		m.binlogListener = nil
	}

	if m.workerPool != nil {
		m.workerPool.Stop()
		m.workerPool = nil
	}

	m.status = StateIdle
}

// RunSnapshot imports every staging table once. Concurrent calls fail with ErrSnapshotRunning.
func (m *Manager) RunSnapshot(ctx context.Context) (*SnapshotReport, error) {
	if m.importer == nil {
		return nil, ErrStagingDisabled
	}
	if !m.snapshotMu.TryLock() {
		return nil, ErrSnapshotRunning
	}
	defer m.snapshotMu.Unlock()

	m.setSnapshotActive(true)
	report, err := m.importer.Run(ctx)

	m.mu.Lock()
	m.snapshotActive = false
	if err != nil {
		m.lastErr = err.Error()
	} else {
		m.lastSnapshot = report
		m.lastErr = ""
	}
	m.mu.Unlock()

	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SnapshotsTotal.WithLabelValues("success").Inc()
	return report, nil
}

func (m *Manager) setSnapshotActive(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotActive = v
}

func (m *Manager) Close() {
	m.Stop()
	if m.stagingDB != nil {
		m.stagingDB.Close()
	}
}

func (m *Manager) GetStatus() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStatus{
		Status:            m.status,
		StagingEnabled:    m.stagingDB != nil,
		SnapshotRunning:   m.snapshotActive,
		LastSnapshot:      m.lastSnapshot,
		LastSnapshotError: m.lastErr,
	}
}
