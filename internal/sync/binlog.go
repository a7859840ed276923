package sync

import (
	"context"
	"fmt"

	"github.com/go-mysql-org/go-mysql/canal"
	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/logger"
)

// BinlogListener tails the staging database binlog and emits one FeedEvent per
// inserted or updated row of a configured staging table. Deletes are ignored.
type BinlogListener struct {
	cfg       config.DatabaseConnection
	source    string
	canal     *canal.Canal
	eventChan chan FeedEvent
	ctx       context.Context
	cancel    context.CancelFunc
	tables    map[string]config.StagingTable
}

func NewBinlogListener(cfg config.StagingConfig) (*BinlogListener, error) {
	conn := cfg.Connection
	if conn.Type != "mysql" {
		return nil, fmt.Errorf("realtime feed requires a mysql staging database, got %q", conn.Type)
	}

	tableMap := make(map[string]config.StagingTable)
	var tableRegex []string
	for _, t := range cfg.Tables {
		tableMap[t.Name] = t
		tableRegex = append(tableRegex, fmt.Sprintf("^%s\\.%s$", conn.Database, t.Name))
	}

	user, password := conn.ReplicationUser, conn.ReplicationPassword
	if user == "" {
		user, password = conn.User, conn.Password
	}

	c, err := canal.NewCanal(&canal.Config{
		Addr:     fmt.Sprintf("%s:%d", conn.Host, conn.Port),
		User:     user,
		Password: password,
		Flavor:   "mysql",
		ServerID: conn.ServerID,
		Dump: canal.DumpConfig{
			ExecutionPath: "", // snapshots come from SnapshotImporter
		},
		IncludeTableRegex: tableRegex,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create canal: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &BinlogListener{
		cfg:       conn,
		source:    cfg.Source,
		canal:     c,
		eventChan: make(chan FeedEvent, 10000),
		ctx:       ctx,
		cancel:    cancel,
		tables:    tableMap,
	}

	c.SetEventHandler(&eventHandler{listener: l})

	return l, nil
}

// Start begins streaming from the current master position.
func (l *BinlogListener) Start() error {
	pos, err := l.canal.GetMasterPos()
	if err != nil {
		return fmt.Errorf("failed to read master position: %w", err)
	}

	logger.Log.Info("Starting binlog listener",
		zap.String("host", l.cfg.Host),
		zap.String("file", pos.Name),
		zap.Uint32("pos", pos.Pos),
	)

	go func() {
		if err := l.canal.RunFrom(pos); err != nil && l.ctx.Err() == nil {
			logger.Log.Error("Canal run error", zap.Error(err))
		}
	}()

	return nil
}

// Stop halts the canal. The event channel stays open; consumers stop on their own signal.
func (l *BinlogListener) Stop() {
	l.cancel()
	l.canal.Close()
	logger.Log.Info("Stopped binlog listener")
}

func (l *BinlogListener) Events() <-chan FeedEvent {
	return l.eventChan
}

type eventHandler struct {
	canal.DummyEventHandler
	listener *BinlogListener
}

func (h *eventHandler) OnRow(e *canal.RowsEvent) error {
	table, ok := h.listener.tables[e.Table.Name]
	if !ok {
		return nil
	}

	columns := make([]string, len(e.Table.Columns))
	for i, col := range e.Table.Columns {
		columns[i] = col.Name
	}

	events, err := feedEvents(table, h.listener.source, e.Action, columns, e.Rows)
	if err != nil {
		return err
	}

	pos := h.listener.canal.SyncedPosition()
	var ts uint32
	if e.Header != nil {
		ts = e.Header.Timestamp
	}

	for _, ev := range events {
		ev.Timestamp = ts
		ev.BinlogFile = pos.Name
		ev.BinlogPos = pos.Pos

		// block when the queue is full to apply backpressure to the canal
		select {
		case h.listener.eventChan <- ev:
		case <-h.listener.ctx.Done():
			return h.listener.ctx.Err()
		}
	}

	return nil
}

func (h *eventHandler) String() string {
	return "StagingBinlogHandler"
}

// rowImages returns the row images to sync for a binlog action: every inserted
// row, or the after image of each updated (before, after) pair.
func rowImages(action string, rows [][]any) [][]any {
	switch action {
	case canal.InsertAction:
		return rows
	case canal.UpdateAction:
		var after [][]any
		for i := 1; i < len(rows); i += 2 {
			after = append(after, rows[i])
		}
		return after
	default:
		return nil
	}
}

func feedEvents(table config.StagingTable, source, action string, columns []string, rows [][]any) ([]FeedEvent, error) {
	entity, err := ParseEntityType(table.EntityType)
	if err != nil {
		return nil, err
	}

	images := rowImages(action, rows)
	events := make([]FeedEvent, 0, len(images))
	for _, values := range images {
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(values) {
				row[col] = values[i]
			}
		}
		events = append(events, FeedEvent{
			Entity:    entity,
			Table:     table.Name,
			Candidate: toCandidate(row, table, source),
		})
	}
	return events, nil
}
