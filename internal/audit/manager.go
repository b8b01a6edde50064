package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/metrics"
	"github.com/neogan74/bakery/internal/persistence"
)

// DropPolicy determines how the manager handles a full buffer.
type DropPolicy string

const (
	DropPolicyDrop  DropPolicy = "drop"
	DropPolicyBlock DropPolicy = "block"
)

const (
	defaultBufferSize   = 1024
	defaultBlockTimeout = time.Second
	writeTimeout        = 5 * time.Second
)

// Config mirrors the public audit configuration.
type Config struct {
	Enabled       bool
	Sink          string
	FilePath      string
	BufferSize    int
	FlushInterval time.Duration
	DropPolicy    DropPolicy
	// BlockTimeout bounds how long Record waits for buffer space under
	// DropPolicyBlock.
	BlockTimeout time.Duration
}

// Manager buffers audit events and delivers them to a Writer from a single
// background goroutine. Delivery is best effort: failures are logged and
// counted, and never fail the request that produced the event.
type Manager struct {
	cfg    Config
	log    logger.Logger
	writer Writer

	events chan *Event
	wg     sync.WaitGroup

	flushTicker *time.Ticker
	stopOnce    sync.Once

	enabled bool
	closed  bool
	mu      sync.RWMutex
}

// NewManager builds a new audit manager. engine backs the "store" sink and
// may be nil for the other sinks. When disabled, the manager is a no-op.
func NewManager(cfg Config, engine persistence.Engine, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	if !cfg.Enabled {
		return &Manager{cfg: cfg, log: log}, nil
	}

	writer, err := newWriter(cfg, engine)
	if err != nil {
		return nil, err
	}
	return NewManagerWithWriter(cfg, writer, log), nil
}

// NewManagerWithWriter builds an enabled manager around an existing writer.
func NewManagerWithWriter(cfg Config, writer Writer, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetDefault()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.DropPolicy == "" {
		cfg.DropPolicy = DropPolicyDrop
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	cfg.Enabled = true

	m := &Manager{
		cfg:         cfg,
		log:         log,
		writer:      writer,
		events:      make(chan *Event, cfg.BufferSize),
		flushTicker: time.NewTicker(cfg.FlushInterval),
		enabled:     true,
	}

	m.wg.Add(1)
	go m.run()

	return m
}

// Enabled indicates whether audit logging is active.
func (m *Manager) Enabled() bool {
	return m != nil && m.enabled
}

// Record buffers an event for asynchronous delivery and returns its ID.
// The returned error only reports that the event was lost; callers on the
// request path log it and carry on.
//
// Cancellation of ctx does not abort delivery of an accepted event.
func (m *Manager) Record(ctx context.Context, event *Event) (string, error) {
	if !m.Enabled() {
		return "", nil
	}
	if event == nil {
		return "", ErrNilEvent
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		m.dropped(event, "closed", ErrManagerClosed)
		return "", ErrManagerClosed
	}

	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		event.ID = id.String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = LevelInformation
	}

	select {
	case m.events <- event:
		metrics.AuditEventsRecorded.WithLabelValues(string(event.Operation)).Inc()
		return event.ID, nil
	default:
	}

	if m.cfg.DropPolicy == DropPolicyDrop {
		m.dropped(event, "buffer_full", ErrBufferFull)
		return "", ErrBufferFull
	}

	// Detached from the request: only the block timeout bounds the wait.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.BlockTimeout)
	defer cancel()

	select {
	case m.events <- event:
		metrics.AuditEventsRecorded.WithLabelValues(string(event.Operation)).Inc()
		return event.ID, nil
	case <-waitCtx.Done():
		m.dropped(event, "buffer_full", ErrBufferFull)
		return "", ErrBufferFull
	}
}

func (m *Manager) run() {
	defer m.wg.Done()

	for {
		select {
		case event, ok := <-m.events:
			if !ok {
				m.flush()
				return
			}
			m.write(event)
		case <-m.flushTicker.C:
			m.flush()
		}
	}
}

// Shutdown drains the buffer, flushes the writer, and closes resources.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.events)
		m.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.flushTicker.Stop()
	return m.writer.Close(ctx)
}

func (m *Manager) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := m.writer.Write(ctx, event); err != nil {
		m.dropped(event, "write_error", err)
		return
	}
	m.log.Debug("Audit event written",
		logger.String("event_id", event.ID),
		logger.String("operation", string(event.Operation)),
		logger.String("actor", event.Actor))
}

func (m *Manager) flush() {
	if err := m.writer.Flush(); err != nil {
		m.log.Error("Failed to flush audit writer", logger.Error(err))
	}
}

func (m *Manager) dropped(event *Event, reason string, err error) {
	metrics.AuditEventsDropped.WithLabelValues(reason).Inc()
	m.log.Warn("Audit event lost",
		logger.String("reason", reason),
		logger.String("operation", string(event.Operation)),
		logger.String("actor", event.Actor),
		logger.Error(err))
}
