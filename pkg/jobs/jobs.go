package jobs

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// WindowPolicy selects which play events from a history fetch are counted.
type WindowPolicy string

const (
	// WindowRecentDay counts only plays from the last 24 hours. Used by the
	// daily sweep so overlapping fetches do not double count.
	WindowRecentDay WindowPolicy = "recentDay"

	// WindowAllReturned counts every play the provider returned. Used for
	// the first run after a user connects an account.
	WindowAllReturned WindowPolicy = "allReturned"
)

// CheckJob instructs an accrual worker to fetch one user's listening
// history and update their collectibles.
type CheckJob struct {
	// JobID correlates producer and consumer log lines for one job.
	JobID        string       `json:"job_id,omitempty"`
	UserID       string       `json:"user_id"`
	RefreshToken string       `json:"refresh_token"`
	Policy       WindowPolicy `json:"policy"`
	// TriggeredBy records what produced the job ("daily" or "connection").
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// DigestJob instructs the digest worker to build and send one user's
// weekly progress summary.
type DigestJob struct {
	JobID        string `json:"job_id,omitempty"`
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

// EncodeCheckJob serializes a CheckJob for publication, assigning a job id
// when the caller left it empty.
func EncodeCheckJob(job CheckJob) ([]byte, error) {
	if err := validateCheckJob(job); err != nil {
		return nil, err
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	return json.Marshal(job)
}

// ParseCheckJob deserializes and validates a consumed CheckJob.
func ParseCheckJob(data []byte) (CheckJob, error) {
	var job CheckJob
	if err := json.Unmarshal(data, &job); err != nil {
		return CheckJob{}, fmt.Errorf("unmarshal check job: %w", err)
	}
	if err := validateCheckJob(job); err != nil {
		return CheckJob{}, err
	}
	return job, nil
}

func validateCheckJob(job CheckJob) error {
	if job.UserID == "" {
		return fmt.Errorf("check job missing user id")
	}
	if job.RefreshToken == "" {
		return fmt.Errorf("check job missing refresh token")
	}
	switch job.Policy {
	case WindowRecentDay, WindowAllReturned:
		return nil
	default:
		return fmt.Errorf("check job has unknown window policy %q", job.Policy)
	}
}

// EncodeDigestJob serializes a DigestJob for publication, assigning a job id
// when the caller left it empty.
func EncodeDigestJob(job DigestJob) ([]byte, error) {
	if job.UserID == "" {
		return nil, fmt.Errorf("digest job missing user id")
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	return json.Marshal(job)
}

// ParseDigestJob deserializes and validates a consumed DigestJob.
func ParseDigestJob(data []byte) (DigestJob, error) {
	var job DigestJob
	if err := json.Unmarshal(data, &job); err != nil {
		return DigestJob{}, fmt.Errorf("unmarshal digest job: %w", err)
	}
	if job.UserID == "" {
		return DigestJob{}, fmt.Errorf("digest job missing user id")
	}
	return job, nil
}
