package filestore

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically removes audio files older than a TTL
type Janitor struct {
	dir      string
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewJanitor creates a janitor for dir
func NewJanitor(dir string, ttl, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		dir:      dir,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (j *Janitor) Start() {
	go j.cleanupLoop()
	j.logger.Info("Audio janitor started",
		zap.String("dir", j.dir),
		zap.Duration("ttl", j.ttl),
		zap.Duration("interval", j.interval))
}

// Stop stops the loop and waits for a running sweep to finish
func (j *Janitor) Stop() {
	close(j.stopChan)
	<-j.doneChan
	j.logger.Info("Audio janitor stopped")
}

func (j *Janitor) cleanupLoop() {
	defer close(j.doneChan)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep deletes expired files once and returns how many were removed
func (j *Janitor) Sweep() int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		j.logger.Error("Failed to read audio directory", zap.String("dir", j.dir), zap.Error(err))
		return 0
	}

	cutoff := j.now().Add(-j.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, entry.Name())); err != nil {
			j.logger.Warn("Failed to remove expired audio file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("Removed expired audio files", zap.Int("count", removed))
	}
	return removed
}
