package audit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/neogan74/bakery/internal/persistence"
)

// Writer defines the sink contract for audit events.
type Writer interface {
	Write(ctx context.Context, event *Event) error
	Flush() error
	Close(ctx context.Context) error
}

func newWriter(cfg Config, engine persistence.Engine) (Writer, error) {
	switch cfg.Sink {
	case "store":
		if engine == nil {
			return nil, fmt.Errorf("audit store sink requires a persistence engine")
		}
		return NewStoreWriter(engine), nil
	case "stdout":
		return newStreamWriter(os.Stdout), nil
	case "file":
		return newFileWriter(cfg.FilePath)
	default:
		return nil, fmt.Errorf("unsupported audit sink: %s", cfg.Sink)
	}
}

// StoreWriter appends events to the document store read by Searcher.
type StoreWriter struct {
	engine persistence.Engine
}

func NewStoreWriter(engine persistence.Engine) *StoreWriter {
	return &StoreWriter{engine: engine}
}

func (w *StoreWriter) Write(ctx context.Context, event *Event) error {
	doc, err := Encode(event)
	if err != nil {
		return err
	}
	return w.engine.Append(ctx, event.ID, doc)
}

func (w *StoreWriter) Flush() error { return nil }

// Close leaves the engine open; the application owns its lifecycle.
func (w *StoreWriter) Close(context.Context) error { return nil }

// streamWriter writes one JSON document per line.
type streamWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func newStreamWriter(out io.Writer) *streamWriter {
	return &streamWriter{out: out}
}

func (w *streamWriter) Write(_ context.Context, event *Event) error {
	doc, err := Encode(event)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.out.Write(append(doc, '\n'))
	return err
}

func (w *streamWriter) Flush() error {
	return nil
}

func (w *streamWriter) Close(context.Context) error {
	return nil
}

type fileWriter struct {
	mu     sync.Mutex
	writer *bufio.Writer
	file   *os.File
}

func newFileWriter(path string) (*fileWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("audit file path cannot be empty")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &fileWriter{
		writer: bufio.NewWriter(file),
		file:   file,
	}, nil
}

func (w *fileWriter) Write(_ context.Context, event *Event) error {
	doc, err := Encode(event)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(doc); err != nil {
		return err
	}
	return w.writer.WriteByte('\n')
}

func (w *fileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Flush()
}

func (w *fileWriter) Close(ctx context.Context) error {
	done := make(chan struct{})
	var flushErr error

	go func() {
		flushErr = w.Flush()
		if err := w.file.Close(); err != nil && flushErr == nil {
			flushErr = err
		}
		close(done)
	}()

	select {
	case <-done:
		return flushErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
