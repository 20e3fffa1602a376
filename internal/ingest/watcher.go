package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/Ajirohack/echo/internal/metrics"
)

// FileWatcher monitors a drop directory for JSON job files and feeds
// them into the worker pool. This is the offline alternative to MQTT
// for batch translation: drop a job file in, collect the result file
// written next to it.
type FileWatcher struct {
	pool     *WorkerPool
	watchDir string
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "scanning", "watching", "stopped"
}

// WatcherStatus reports watcher state for the health endpoint.
type WatcherStatus struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesSkipped   int64  `json:"files_skipped"`
}

// NewFileWatcher creates a drop-directory watcher.
func NewFileWatcher(pool *WorkerPool, watchDir string, log zerolog.Logger) *FileWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	fw := &FileWatcher{
		pool:           pool,
		watchDir:       watchDir,
		log:            log.With().Str("component", "watcher").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		debounceTimers: make(map[string]*time.Timer),
	}
	fw.status.Store("starting")
	return fw
}

// Start initializes the fsnotify watcher, adds all existing directories,
// and scans for job files dropped while the service was down.
func (fw *FileWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w

	dirCount := 0
	err = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil // continue walking
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.watchDir).
		Msg("file watcher initialized")

	go fw.watchLoop()
	go fw.scanExisting()

	return nil
}

// Stop closes the fsnotify watcher and cancels pending debounce work.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	fw.cancel()
	if fw.watcher != nil {
		fw.watcher.Close()
	}
	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() *WatcherStatus {
	s, _ := fw.status.Load().(string)
	return &WatcherStatus{
		Status:         s,
		WatchDir:       fw.watchDir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
	}
}

// watchLoop is the main event loop that processes fsnotify events.
func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: add it to the watch set so jobs dropped in
			// subdirectories are seen too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !isJobFile(event.Name) {
				continue
			}

			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces job files by 500ms. This coalesces rapid
// Create+Write events and ensures the file is fully written before reading.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		fw.processJobFile(path)
	})
}

// processJobFile reads a job file and enqueues it. The result lands in
// a .result.json sibling so reruns can tell what is already done.
func (fw *FileWatcher) processJobFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to read job file")
		return
	}

	job, err := ParseJob(data)
	if err != nil {
		metrics.IngestRejectedTotal.Inc()
		fw.filesSkipped.Add(1)
		fw.log.Warn().Err(err).Str("path", path).Msg("rejected job file")
		return
	}

	if job.RequestID == "" {
		job.RequestID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	job.Source = "watch"
	job.ResultPath = resultPath(path)
	job.OutputBase = strings.TrimSuffix(path, filepath.Ext(path))

	if !fw.pool.Enqueue(*job) {
		fw.filesSkipped.Add(1)
		fw.log.Warn().Str("path", path).Msg("queue full, job file dropped")
		return
	}

	fw.filesProcessed.Add(1)
	fw.log.Debug().Str("path", path).Str("request_id", job.RequestID).Msg("job file accepted")
}

// scanExisting picks up job files dropped while the service was down.
// Files that already have a result sibling are skipped.
func (fw *FileWatcher) scanExisting() {
	fw.status.Store("scanning")
	start := time.Now()
	var scanned int

	_ = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if fw.ctx.Err() != nil {
			return filepath.SkipAll
		}
		if err != nil || d.IsDir() {
			return nil
		}
		if !isJobFile(path) {
			return nil
		}
		if _, err := os.Stat(resultPath(path)); err == nil {
			fw.filesSkipped.Add(1)
			return nil
		}
		fw.processJobFile(path)
		scanned++
		return nil
	})

	fw.status.Store("watching")
	if scanned > 0 {
		fw.log.Info().
			Int("files", scanned).
			Dur("elapsed", time.Since(start)).
			Msg("startup scan complete")
	}
}

// isJobFile matches *.json but not the *.result.json files we write.
func isJobFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".json") && !strings.HasSuffix(lower, ".result.json")
}

// resultPath is the sibling file the job's result is written to.
func resultPath(jobPath string) string {
	return strings.TrimSuffix(jobPath, filepath.Ext(jobPath)) + ".result.json"
}
