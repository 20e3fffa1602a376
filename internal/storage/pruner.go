package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OutputPruner deletes synthesized audio from the local output dir once
// the retention passes. Outputs can always be regenerated from a fresh
// request, so there is no backup check before deleting.
type OutputPruner struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewOutputPruner creates a pruner that evicts output files by age.
func NewOutputPruner(dir string, retention time.Duration, log zerolog.Logger) *OutputPruner {
	return &OutputPruner{
		dir:       dir,
		retention: retention,
		interval:  1 * time.Hour,
		log:       log.With().Str("component", "output-pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *OutputPruner) Start() {
	go p.loop()
}

func (p *OutputPruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *OutputPruner) loop() {
	// Run once on startup to clear any backlog from downtime
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *OutputPruner) prune() {
	if p.retention <= 0 {
		return
	}

	cutoff := time.Now().Add(-p.retention)
	var prunedCount int
	var prunedBytes int64

	filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				prunedCount++
				prunedBytes += info.Size()
			}
		}
		return nil
	})

	p.removeEmptyDirs()

	if prunedCount > 0 {
		p.log.Info().
			Int("pruned", prunedCount).
			Str("freed", humanizeBytes(prunedBytes)).
			Msg("output prune complete")
	}
}

// removeEmptyDirs clears emptied {source}-{target}/{date} directories.
func (p *OutputPruner) removeEmptyDirs() {
	entries, _ := os.ReadDir(p.dir)
	for _, pairDir := range entries {
		if !pairDir.IsDir() {
			continue
		}
		pairPath := filepath.Join(p.dir, pairDir.Name())
		dateDirs, _ := os.ReadDir(pairPath)
		for _, dateDir := range dateDirs {
			if !dateDir.IsDir() {
				continue
			}
			datePath := filepath.Join(pairPath, dateDir.Name())
			remaining, _ := os.ReadDir(datePath)
			if len(remaining) == 0 {
				os.Remove(datePath)
			}
		}
		remaining, _ := os.ReadDir(pairPath)
		if len(remaining) == 0 {
			os.Remove(pairPath)
		}
	}
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
