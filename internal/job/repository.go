package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a transcription job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Repository is the persistence port for transcription jobs. The API layer
// polls jobs through it while background processing updates them, so every
// implementation must be safe for concurrent use.
type Repository interface {
	// Save persists a job, updating it when it already exists.
	Save(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns all known jobs, in no particular order.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}
