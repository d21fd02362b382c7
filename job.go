package cardmaker

import "sync"

// JobStatus is an export job's lifecycle state. Transitions are strictly
// forward-moving: queued -> processing -> complete | error.
type JobStatus string

// Job statuses.
const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusComplete   JobStatus = "complete"
	StatusError      JobStatus = "error"
)

// statusRank orders statuses so a job can never move backwards.
var statusRank = map[JobStatus]int{
	StatusQueued:     0,
	StatusProcessing: 1,
	StatusComplete:   2,
	StatusError:      2,
}

// ExportJob tracks asynchronous export progress. A job record is mutated
// only by the goroutine processing it; callers always receive copies.
type ExportJob struct {
	ID           string       `json:"id"`
	Status       JobStatus    `json:"status"`
	Progress     int          `json:"progress"` // 0-100
	Total        int          `json:"total"`
	Completed    int          `json:"completed"`
	Format       ExportFormat `json:"format"`
	OutputPath   string       `json:"outputPath,omitempty"`
	OutputPaths  []string     `json:"outputPaths,omitempty"`
	CardBackPath string       `json:"cardBackPath,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// jobStore is the in-memory job map. Jobs are never evicted for the
// process lifetime: acceptable for a single-user desktop session, a
// deliberate gap for anything longer-running.
type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]*ExportJob
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*ExportJob)}
}

func (s *jobStore) create(job ExportJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &job
}

// get returns a copy of the job so readers never observe a half-applied
// mutation.
func (s *jobStore) get(id string) (ExportJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return ExportJob{}, false
	}
	out := *job
	out.OutputPaths = append([]string(nil), job.OutputPaths...)
	return out, true
}

// update applies fn to the job under the lock, enforcing the forward-only
// status machine and monotonic progress regardless of what fn does.
func (s *jobStore) update(id string, fn func(*ExportJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	prevStatus := job.Status
	prevProgress := job.Progress

	fn(job)

	if statusRank[job.Status] < statusRank[prevStatus] {
		job.Status = prevStatus
	}
	if job.Progress < prevProgress {
		job.Progress = prevProgress
	}
	if job.Progress > 100 {
		job.Progress = 100
	}
	if job.Completed > job.Total {
		job.Completed = job.Total
	}
}
