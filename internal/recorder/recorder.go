// Package recorder writes live/offline transitions to rotating JSONL files,
// one file per platform and channel, and hands closed files to the uploader.
package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/john/livewatch/internal/engine"
	"github.com/john/livewatch/internal/live"
)

const fileTimeLayout = "20060102_1504"

// fileWriter manages a single JSONL file
type fileWriter struct {
	file         *os.File
	writer       *bufio.Writer
	createdAt    time.Time
	bytesWritten int64
	buffer       []live.Transition
	filename     string
}

// Recorder handles buffering and writing transitions to disk
type Recorder struct {
	outputDir   string
	bufferSize  int
	rotateAfter time.Duration
	rotateBytes int64
	now         func() time.Time

	currentFiles map[string]*fileWriter // key: "platform_channel"
	mu           sync.Mutex
}

// New creates a new recorder
func New(outputDir string, bufferSize, rotateMinutes, rotateMegabytes int) *Recorder {
	return &Recorder{
		outputDir:    outputDir,
		bufferSize:   max(1, bufferSize),
		rotateAfter:  time.Duration(rotateMinutes) * time.Minute,
		rotateBytes:  int64(rotateMegabytes) * 1024 * 1024,
		now:          time.Now,
		currentFiles: make(map[string]*fileWriter),
	}
}

// Start records transitions until ctx is cancelled, then flushes and queues
// every open file.
func (r *Recorder) Start(ctx context.Context, transitions <-chan live.Transition, fileChan chan<- string) error {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case t := <-transitions:
			if err := r.Record(t); err != nil {
				slog.Warn("recorder: write failed", slog.String("channel", t.Channel), slog.Any("error", err))
			}

		case <-ticker.C:
			r.CheckRotation(fileChan)

		case <-ctx.Done():
			slog.Info("recorder: shutting down, flushing buffers")
			r.FlushAll(fileChan)
			return ctx.Err()
		}
	}
}

// Record buffers one transition, flushing when the buffer is full.
func (r *Recorder) Record(t live.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s_%s", t.Platform, t.Channel)
	fw := r.currentFiles[key]
	if fw == nil {
		var err error
		fw, err = r.createFileWriter(key)
		if err != nil {
			return fmt.Errorf("create file writer: %w", err)
		}
		r.currentFiles[key] = fw
	}

	fw.buffer = append(fw.buffer, t)
	if len(fw.buffer) >= r.bufferSize {
		if err := fw.flush(); err != nil {
			return fmt.Errorf("flush buffer: %w", err)
		}
	}
	return nil
}

func (r *Recorder) createFileWriter(key string) (*fileWriter, error) {
	now := r.now()
	filename := fmt.Sprintf("%s_%s.jsonl", key, now.UTC().Format(fileTimeLayout))

	file, err := os.OpenFile(filepath.Join(r.outputDir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	slog.Debug("recorder: opened file", slog.String("file", filename))

	return &fileWriter{
		file:      file,
		writer:    bufio.NewWriter(file),
		createdAt: now,
		buffer:    make([]live.Transition, 0, r.bufferSize),
		filename:  filename,
	}, nil
}

// flush writes buffered transitions to disk
func (fw *fileWriter) flush() error {
	for _, t := range fw.buffer {
		data, err := json.Marshal(t)
		if err != nil {
			slog.Warn("recorder: marshal failed", slog.Any("error", err))
			continue
		}
		n, err := fw.writer.Write(append(data, '\n'))
		fw.bytesWritten += int64(n)
		if err != nil {
			return fmt.Errorf("write transition: %w", err)
		}
	}
	fw.buffer = fw.buffer[:0]
	return fw.writer.Flush()
}

// close flushes and closes the file.
func (fw *fileWriter) close() {
	if err := fw.flush(); err != nil {
		slog.Warn("recorder: flush failed", slog.String("file", fw.filename), slog.Any("error", err))
	}
	if err := fw.file.Close(); err != nil {
		slog.Warn("recorder: close failed", slog.String("file", fw.filename), slog.Any("error", err))
	}
}

// CheckRotation closes files that are too old or too large and queues them.
// The next transition for that channel opens a fresh file.
func (r *Recorder) CheckRotation(fileChan chan<- string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, fw := range r.currentFiles {
		reason := ""
		switch {
		case r.rotateAfter > 0 && r.now().Sub(fw.createdAt) >= r.rotateAfter:
			reason = "time limit"
		case r.rotateBytes > 0 && fw.bytesWritten >= r.rotateBytes:
			reason = "size limit"
		}
		if reason == "" {
			continue
		}

		slog.Info("recorder: rotating file", slog.String("file", fw.filename), slog.String("reason", reason))
		fw.close()
		r.queue(fw, fileChan)
		delete(r.currentFiles, key)
	}
}

// FlushAll closes every open file and queues it for upload.
func (r *Recorder) FlushAll(fileChan chan<- string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, fw := range r.currentFiles {
		fw.close()
		r.queue(fw, fileChan)
		delete(r.currentFiles, key)
	}
	slog.Info("recorder: all files flushed and closed")
}

func (r *Recorder) queue(fw *fileWriter, fileChan chan<- string) {
	if fileChan == nil {
		return
	}
	path := filepath.Join(r.outputDir, fw.filename)
	select {
	case fileChan <- path:
		slog.Debug("recorder: queued file for upload", slog.String("file", fw.filename))
	default:
		slog.Warn("recorder: upload queue full, file will be picked up on next start", slog.String("file", fw.filename))
	}
}

// Feed returns an engine subscriber that diffs consecutive status
// publications and sends the transitions on out. The first publication only
// establishes the baseline. Transitions are dropped when out is full.
func Feed(out chan<- live.Transition) func(engine.Event) {
	var mu sync.Mutex
	var prev live.StatusMap

	return func(ev engine.Event) {
		if ev.Type != engine.EventStatus {
			return
		}
		mu.Lock()
		defer mu.Unlock()

		if prev == nil {
			prev = ev.Statuses.Clone()
			return
		}
		for _, t := range live.Diff(prev, ev.Statuses, time.Now()) {
			select {
			case out <- t:
			default:
				slog.Warn("recorder: transition queue full, dropping", slog.String("channel", t.Channel))
			}
		}
		prev = ev.Statuses.Clone()
	}
}
