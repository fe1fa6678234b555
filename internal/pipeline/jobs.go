package pipeline

import (
	"sync"
	"time"
)

// Phase is a stage of the document state machine.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseLoading    Phase = "loading"
	PhaseChunking   Phase = "chunking"
	PhaseExtracting Phase = "extracting"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Tracker receives progress callbacks from a document run. Implementations
// must be safe for calls from the processing goroutine.
type Tracker interface {
	SetPhase(phase Phase)
	SetTotalChunks(n int)
	ChunkDone(failed bool)
	AddPoints(n int)
}

type noopTracker struct{}

func (noopTracker) SetPhase(Phase)     {}
func (noopTracker) SetTotalChunks(int) {}
func (noopTracker) ChunkDone(bool)     {}
func (noopTracker) AddPoints(int)      {}

// Progress tracks per-run counters exposed over the API.
type Progress struct {
	TotalChunks     int      `json:"total_chunks"`
	ChunksProcessed int      `json:"chunks_processed"`
	ChunksFailed    int      `json:"chunks_failed"`
	PointsEmitted   int      `json:"points_emitted"`
	Errors          []string `json:"errors"`
}

// Job tracks the state of a single document run submitted over the API.
type Job struct {
	mu sync.Mutex

	ID           string `json:"job_id"`
	DocumentPath string `json:"document_path"`

	Phase    Phase    `json:"phase"`
	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	result *Result
}

// SetPhase implements Tracker. A job already failed stays failed.
func (j *Job) SetPhase(phase Phase) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Phase == PhaseFailed {
		return
	}
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// SetTotalChunks implements Tracker.
func (j *Job) SetTotalChunks(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = n
	j.UpdatedAt = time.Now()
}

// ChunkDone implements Tracker.
func (j *Job) ChunkDone(failed bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksProcessed++
	if failed {
		j.Progress.ChunksFailed++
	}
	j.UpdatedAt = time.Now()
}

// AddPoints implements Tracker.
func (j *Job) AddPoints(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PointsEmitted += n
	j.UpdatedAt = time.Now()
}

// Fail records a fatal error and moves the job to the failed phase.
func (j *Job) Fail(errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Errors = append(j.Progress.Errors, errMsg)
	j.Phase = PhaseFailed
	j.UpdatedAt = time.Now()
}

// SetResult stores the finished run result.
func (j *Job) SetResult(res *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	for _, w := range res.Warnings {
		j.Progress.Errors = append(j.Progress.Errors, w)
	}
	j.UpdatedAt = time.Now()
}

// Result returns the stored run result, nil until the job is done.
func (j *Job) Result() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Snapshot is a read-only, JSON-safe copy of job state.
type Snapshot struct {
	ID           string   `json:"job_id"`
	DocumentPath string   `json:"document_path"`
	Phase        Phase    `json:"phase"`
	Progress     Progress `json:"progress"`
}

// Snapshot returns a copy safe to serialize without holding the lock.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return Snapshot{
		ID:           j.ID,
		DocumentPath: j.DocumentPath,
		Phase:        j.Phase,
		Progress: Progress{
			TotalChunks:     j.Progress.TotalChunks,
			ChunksProcessed: j.Progress.ChunksProcessed,
			ChunksFailed:    j.Progress.ChunksFailed,
			PointsEmitted:   j.Progress.PointsEmitted,
			Errors:          errs,
		},
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes jobs idle longer than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}
