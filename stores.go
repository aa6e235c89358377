package blogwatch

import "context"

// PostStore is the persistence contract for post records. Writes are
// last-writer-wins upserts keyed by post ID.
type PostStore interface {
	// GetPostsByDate returns every post recorded for the given date.
	GetPostsByDate(ctx context.Context, date string) ([]PostRecord, error)

	// GetUnprocessedPostsByDate returns posts for the date that have not
	// completed categorization.
	GetUnprocessedPostsByDate(ctx context.Context, date string) ([]PostRecord, error)

	// UpsertPost writes one post, assigning an ID if the record has none.
	UpsertPost(ctx context.Context, post *PostRecord) error

	// BatchUpsertPosts writes many posts, preserving unspecified fields of
	// any pre-existing record with the same ID.
	BatchUpsertPosts(ctx context.Context, posts []PostRecord) error
}

// CategoryHistoryStore appends categorization outcomes. Each call inserts a
// new record with a fresh identifier; an earlier entry for the same date is
// never updated.
type CategoryHistoryStore interface {
	AppendCategoriesForDate(ctx context.Context, date string, categories []string) error
}

// ObjectStore is the bucket-backed blob storage used for batch-inference
// inputs and outputs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, name string) error
	Upload(ctx context.Context, localPath, bucket, key string) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// JobStatus is the lifecycle state of a batch-inference job.
type JobStatus int

const (
	JobStatusUnknown JobStatus = iota
	JobStatusSubmitted
	JobStatusInProgress
	JobStatusCompleted
	JobStatusFailed
	JobStatusStopped
)

// String returns the status name for logging.
func (s JobStatus) String() string {
	switch s {
	case JobStatusSubmitted:
		return "Submitted"
	case JobStatusInProgress:
		return "InProgress"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusFailed:
		return "Failed"
	case JobStatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// InferenceJobService submits and tracks asynchronous bulk text-generation
// jobs operating over a file of prompts.
type InferenceJobService interface {
	// SubmitJob starts a job reading prompts from inputURI and writing
	// responses under outputURI, returning an opaque job handle.
	SubmitJob(ctx context.Context, inputURI, outputURI, jobName, roleRef string) (string, error)

	// GetJobStatus reports the current state of a previously submitted job.
	GetJobStatus(ctx context.Context, handle string) (JobStatus, error)
}
