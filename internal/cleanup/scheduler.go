package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codebuildervaibhav/recording-processor/internal/metrics"
	"github.com/codebuildervaibhav/recording-processor/internal/storage"
)

// Tracker reports whether a scratch file still belongs to a session
type Tracker interface {
	Tracked(filename string) bool
}

// Trackers treats a file as tracked when any of its trackers does
type Trackers []Tracker

// Tracked implements Tracker
func (ts Trackers) Tracked(filename string) bool {
	for _, t := range ts {
		if t.Tracked(filename) {
			return true
		}
	}
	return false
}

// Scheduler periodically deletes abandoned files from the scratch directory.
// Files of live or failed sessions are never touched.
type Scheduler struct {
	tempDir  string
	schedule string
	maxAge   time.Duration
	tracker  Tracker
	metrics  *metrics.Metrics
	cron     *cron.Cron
}

// NewScheduler creates a new cleanup scheduler. schedule is a cron expression such
// as "@every 30m".
func NewScheduler(tempDir, schedule string, maxAge time.Duration, tracker Tracker, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		schedule: schedule,
		maxAge:   maxAge,
		tracker:  tracker,
		metrics:  m,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start runs an initial sweep and schedules the periodic one
func (s *Scheduler) Start() error {
	log.Println("Running initial scratch directory sweep...")
	s.Sweep()

	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return err
	}
	s.cron.Start()

	log.Printf("Cleanup scheduler started (schedule: %s, max age: %s)", s.schedule, s.maxAge)
	return nil
}

// Stop stops the cleanup scheduler and waits for a running sweep
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Cleanup scheduler stopped")
}

// Sweep deletes untracked files and interrupted flushes older than maxAge
// and returns how many files were removed
func (s *Scheduler) Sweep() int {
	now := time.Now()

	var deletedCount int
	var deletedSize int64

	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		log.Printf("Error during cleanup: %v", err)
		return 0
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		name := entry.Name()
		partial := strings.HasSuffix(name, storage.PartialSuffix)
		if !partial && s.tracker != nil && s.tracker.Tracked(name) {
			continue
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			continue
		}

		path := filepath.Join(s.tempDir, name)
		if err := os.Remove(path); err != nil {
			log.Printf("Failed to delete old file %s: %v", path, err)
			continue
		}
		deletedCount++
		deletedSize += info.Size()
		log.Printf("Deleted old scratch file: %s (age: %s, size: %dKB)",
			name, age.Round(time.Minute), info.Size()/1024)
	}

	if deletedCount > 0 {
		log.Printf("Cleanup complete: %d files deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
		if s.metrics != nil {
			s.metrics.SweptFiles.Add(float64(deletedCount))
		}
	}
	return deletedCount
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return err
	}
	log.Printf("Temp directory ready: %s", tempDir)
	return nil
}
