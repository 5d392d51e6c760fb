package chatlog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kwach/chatwire/internal/chat"
)

const insertMessage = `
	INSERT INTO chat_messages (message_id, received_at, channel, chatter_id, chatter_login, chatter_name, text)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (message_id) DO NOTHING
`

// Every how many drops the overflow warning repeats.
const droppedLogEvery = 100

// batchSender is the slice of pgxpool.Pool the sink writes through. Tests
// install a stub so flush behavior is checkable without Postgres.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Sink batches inbound chat messages into the chat_messages table.
type Sink struct {
	cfg    Config
	logger *slog.Logger
	sender batchSender

	input   chan row
	dropped atomic.Uint64

	batch       []row
	batchMu     sync.Mutex
	metrics     Metrics
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates a sink writing through pool.
func New(cfg Config, pool *pgxpool.Pool, logger *slog.Logger) *Sink {
	return newSink(cfg, pool, logger)
}

func newSink(cfg Config, sender batchSender, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}

	return &Sink{
		cfg:    cfg,
		logger: logger,
		sender: sender,
		input:  make(chan row, cfg.QueueSize),
		batch:  make([]row, 0, cfg.BatchSize),
		now:    time.Now,
	}
}

// Start begins consuming queued messages and writing to the database.
func (s *Sink) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.flushTicker = time.NewTicker(s.cfg.FlushInterval)

	s.wg.Add(1)
	go s.consumeLoop()

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Info("chat log sink started",
		"batch_size", s.cfg.BatchSize,
		"flush_interval", s.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts the sink down and flushes whatever the batch still holds.
func (s *Sink) Stop(ctx context.Context) error {
	s.logger.Info("stopping chat log sink")

	if s.cancel != nil {
		s.cancel()
	}
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("chat log sink stop timed out")
	}

	// Final flush
	s.flush()

	s.logger.Info("chat log sink stopped", "dropped", s.dropped.Load())
	return nil
}

// Enqueue queues one message for insertion. When the queue is full the
// message is dropped and counted rather than blocking the caller, which
// runs on the inbound read loop.
func (s *Sink) Enqueue(msg chat.Message) bool {
	r := row{
		MessageID:    msg.ID,
		ReceivedAt:   s.now().UTC(),
		Channel:      msg.Channel,
		ChatterID:    msg.ChatterID,
		ChatterLogin: msg.ChatterLogin,
		ChatterName:  msg.ChatterName,
		Text:         msg.Text,
	}

	select {
	case s.input <- r:
		return true
	default:
		dropped := s.dropped.Add(1)
		if dropped%droppedLogEvery == 1 {
			s.logger.Warn("chat log queue full, dropping messages", "dropped_total", dropped)
		}
		return false
	}
}

// Stats returns current metrics.
func (s *Sink) Stats() Metrics {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	m := s.metrics
	m.Dropped = int64(s.dropped.Load())
	return m
}

// consumeLoop reads queued rows and accumulates batches.
func (s *Sink) consumeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case r := <-s.input:
			s.add(r)
		}
	}
}

// flushLoop periodically flushes the batch.
func (s *Sink) flushLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.flushTicker.C:
			s.flush()
		}
	}
}

func (s *Sink) add(r row) {
	s.batchMu.Lock()
	s.batch = append(s.batch, r)
	shouldFlush := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flush()
	}
}

// flush writes the current batch to the database.
func (s *Sink) flush() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}

	// Take ownership of the current batch
	batch := s.batch
	s.batch = make([]row, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	start := time.Now()

	conflicts, err := s.batchInsert(batch)
	if err != nil {
		s.logger.Error("batch insert failed", "error", err, "count", len(batch))
		s.batchMu.Lock()
		s.metrics.Errors++
		s.batchMu.Unlock()
		return
	}

	s.batchMu.Lock()
	s.metrics.Inserts += int64(len(batch) - conflicts)
	s.metrics.Conflicts += int64(conflicts)
	s.metrics.Flushes++
	s.batchMu.Unlock()

	s.logger.Debug("flushed chat messages",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *Sink) batchInsert(rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertMessage,
			r.MessageID, r.ReceivedAt, r.Channel, r.ChatterID, r.ChatterLogin, r.ChatterName, r.Text)
	}

	// Stop's final flush runs after s.ctx is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushTimeout)
	defer cancel()

	results := s.sender.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
