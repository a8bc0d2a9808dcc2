package entity

import "sync"

// Job is one load request tracked from submission to its terminal state.
// The submission fields are immutable; the progress fields are owned by the
// single worker goroutine driving the job and are read concurrently by the
// status endpoint, so every access goes through the entry's own mutex.
type Job struct {
	ID        string // Unique identifier, generated at submission
	SourceURL string // Remote location to fetch
	Name      string // Name the database will be installed under
	StatusURL string // Absolute URL of the status endpoint for this job

	mu        sync.Mutex
	done      bool
	errMsg    string
	todoBytes int64
	doneBytes int64
}

// JobSnapshot is the wire representation of a job returned by the API.
// Field names follow the status document polled by clients.
type JobSnapshot struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Name      string  `json:"name"`
	Done      bool    `json:"done"`
	Error     *string `json:"error"`
	TodoBytes int64   `json:"todo_bytes"`
	DoneBytes int64   `json:"done_bytes"`
	StatusURL string  `json:"status_url"`
}

// SetProgress records transfer progress. Calls after the job has reached a
// terminal state are ignored, the record is frozen once done.
func (j *Job) SetProgress(doneBytes, todoBytes int64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.done {
		return
	}

	if todoBytes > 0 {
		j.todoBytes = todoBytes
	}

	if doneBytes > j.doneBytes {
		j.doneBytes = doneBytes
	}
}

// Fail moves the job to its terminal state with the given error message.
// Only the first terminal transition takes effect.
func (j *Job) Fail(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.done {
		return
	}

	j.done = true
	j.errMsg = msg
}

// Succeed moves the job to its terminal state without an error.
func (j *Job) Succeed() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.done {
		return
	}

	j.done = true
}

// Done reports whether the job has reached a terminal state.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.done
}

// Snapshot returns a consistent copy of the job state for serialization.
func (j *Job) Snapshot() *JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := &JobSnapshot{
		ID:        j.ID,
		URL:       j.SourceURL,
		Name:      j.Name,
		Done:      j.done,
		TodoBytes: j.todoBytes,
		DoneBytes: j.doneBytes,
		StatusURL: j.StatusURL,
	}

	if j.errMsg != "" {
		msg := j.errMsg
		s.Error = &msg
	}

	return s
}
