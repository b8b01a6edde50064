package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/persistence"
)

func shutdown(t *testing.T, mgr *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestManagerDisabledIsNoop(t *testing.T) {
	mgr, err := NewManager(Config{Enabled: false}, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := mgr.Record(context.Background(), &Event{Operation: OperationPost, Actor: "alice"})
	if err != nil || id != "" {
		t.Fatalf("expected silent no-op, got %q, %v", id, err)
	}
	if err := mgr.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of disabled manager failed: %v", err)
	}
}

func TestManagerStoreSinkIsSearchable(t *testing.T) {
	engine := persistence.NewMemoryEngine()
	mgr, err := NewManager(Config{
		Enabled:       true,
		Sink:          "store",
		BufferSize:    8,
		FlushInterval: 5 * time.Millisecond,
	}, engine, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	ts := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	id, err := mgr.Record(context.Background(), &Event{Timestamp: ts, Operation: OperationPost, Actor: "Baker@localhost", Path: "/batches"})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected a UUID event id, got %q", id)
	}

	shutdown(t, mgr)

	events, err := NewSearcher(engine, logger.NewNop()).Search(context.Background(), Filter{Actor: "Baker@localhost"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != id || events[0].Path != "/batches" || !events[0].Timestamp.Equal(ts) {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestManagerStoreSinkRequiresEngine(t *testing.T) {
	if _, err := NewManager(Config{Enabled: true, Sink: "store"}, nil, logger.NewNop()); err == nil {
		t.Fatal("expected error without an engine")
	}
	if _, err := NewManager(Config{Enabled: true, Sink: "kafka"}, nil, logger.NewNop()); err == nil {
		t.Fatal("expected error for an unknown sink")
	}
}

func TestManagerFileSinkWritesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")

	mgr, err := NewManager(Config{
		Enabled:       true,
		Sink:          "file",
		FilePath:      path,
		BufferSize:    8,
		FlushInterval: 5 * time.Millisecond,
		DropPolicy:    DropPolicyBlock,
	}, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if _, err := mgr.Record(context.Background(), &Event{Operation: OperationDelete, Actor: "Admin@localhost"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	shutdown(t, mgr)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}
	if !strings.Contains(string(data), `"Operation":"Delete","User":"Admin@localhost"`) {
		t.Fatalf("audit log missing event, got: %s", string(data))
	}
}

func TestManagerRejectsWritesAfterShutdown(t *testing.T) {
	mgr := NewManagerWithWriter(Config{BufferSize: 1}, NewStoreWriter(persistence.NewMemoryEngine()), logger.NewNop())
	shutdown(t, mgr)

	if _, err := mgr.Record(context.Background(), &Event{Operation: OperationPut}); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}
	if _, err := mgr.Record(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}

// blockingWriter holds every write until release is closed.
type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	written []*Event
}

func (w *blockingWriter) Write(_ context.Context, e *Event) error {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, e)
	return nil
}

func (w *blockingWriter) Flush() error                { return nil }
func (w *blockingWriter) Close(context.Context) error { return nil }

func TestManagerDropsWhenBufferFull(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	mgr := NewManagerWithWriter(Config{BufferSize: 1, DropPolicy: DropPolicyDrop}, w, logger.NewNop())

	var dropped int
	for i := 0; i < 5; i++ {
		if _, err := mgr.Record(context.Background(), &Event{Operation: OperationPost}); errors.Is(err, ErrBufferFull) {
			dropped++
		}
	}
	if dropped == 0 {
		t.Fatal("expected at least one dropped event with a stalled writer")
	}

	close(w.release)
	shutdown(t, mgr)
}

func TestManagerBlockPolicyIgnoresRequestCancellation(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	mgr := NewManagerWithWriter(Config{BufferSize: 1, DropPolicy: DropPolicyBlock, BlockTimeout: 2 * time.Second}, w, logger.NewNop())

	// Fill the writer and the buffer
	_, _ = mgr.Record(context.Background(), &Event{Operation: OperationPost})
	_, _ = mgr.Record(context.Background(), &Event{Operation: OperationPost})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(w.release)
	}()

	if _, err := mgr.Record(ctx, &Event{Operation: OperationDelete}); err != nil {
		t.Fatalf("a cancelled request must not drop its audit event: %v", err)
	}
	shutdown(t, mgr)

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.written) != 3 {
		t.Fatalf("expected 3 delivered events, got %d", len(w.written))
	}
}

type failingWriter struct{}

func (failingWriter) Write(context.Context, *Event) error { return errors.New("sink down") }
func (failingWriter) Flush() error                         { return nil }
func (failingWriter) Close(context.Context) error          { return nil }

func TestManagerSwallowsWriteErrors(t *testing.T) {
	mgr := NewManagerWithWriter(Config{BufferSize: 4}, failingWriter{}, logger.NewNop())

	if _, err := mgr.Record(context.Background(), &Event{Operation: OperationPost}); err != nil {
		t.Fatalf("write failures must not surface at Record: %v", err)
	}
	shutdown(t, mgr)
}
