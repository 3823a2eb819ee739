package pipeline

import (
	"time"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// Request is a client's trigger to process a recording
type Request struct {
	Filename string
	UserID   string
	// Plan is what the client declared; it is never used for gating
	Plan types.Plan
}

// job is one pipeline run for a claimed session
type job struct {
	filename     string
	userID       string
	declaredPlan types.Plan
	path         string
	createdAt    time.Time
}

func newJob(req Request, path string) *job {
	return &job{
		filename:     req.Filename,
		userID:       req.UserID,
		declaredPlan: req.Plan,
		path:         path,
		createdAt:    time.Now(),
	}
}
