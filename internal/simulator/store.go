package simulator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
)

// watcherBuffer comfortably exceeds the frames one lifecycle can emit,
// so a broadcast never blocks on a subscriber.
const watcherBuffer = 16

// Store is the in-memory job table.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

// NewStore returns an empty job table.
func NewStore() *Store { return &Store{jobs: make(map[string]*job)} }

// job is one submitted execution plus its stream subscribers.
type job struct {
	id        string
	device    string
	shots     int
	fail      bool
	createdAt time.Time

	mu              sync.Mutex
	status          execution.JobStatus
	cancelRequested bool
	watchers        map[int]chan execution.JobStatus
	nextWatcher     int
}

// Create registers a new job in INITIALIZING. Jobs whose program asks to
// fail will finish in ERROR instead of DONE.
func (s *Store) Create(device string, shots int, fail bool) *job {
	if shots <= 0 {
		shots = defaultShots
	}
	j := &job{
		id:        uuid.New().String(),
		device:    device,
		shots:     shots,
		fail:      fail,
		createdAt: time.Now().UTC(),
		status:    execution.JobStatusInitializing,
		watchers:  make(map[int]chan execution.JobStatus),
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()
	return j
}

// Get looks up a job by id.
func (s *Store) Get(id string) (*job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

// PendingOn counts the device's jobs that have not reached a terminal
// status yet.
func (s *Store) PendingOn(device string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, j := range s.jobs {
		if j.device == device && !j.Status().IsTerminal() {
			n++
		}
	}
	return n
}

// Status returns the job's current status.
func (j *job) Status() execution.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// setStatus advances the job through the domain transition rule and fans
// the accepted transition out to subscribers. Terminal states stick.
func (j *job) setStatus(next execution.JobStatus) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	applied, accepted := j.status.Apply(next)
	if !accepted {
		return false
	}
	j.status = applied

	for _, ch := range j.watchers {
		select {
		case ch <- applied:
		default:
		}
	}
	return true
}

// requestCancel marks the job for cancellation; the lifecycle script
// turns the mark into a CANCELLED transition on its next step. Returns
// false when the job is already terminal.
func (j *job) requestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.IsTerminal() {
		return false
	}
	j.cancelRequested = true
	return true
}

func (j *job) cancelPending() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// subscribe registers a status watcher and returns the current status
// alongside the transition feed. The caller must invoke the returned
// cancel function when done.
func (j *job) subscribe() (execution.JobStatus, <-chan execution.JobStatus, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.nextWatcher
	j.nextWatcher++
	ch := make(chan execution.JobStatus, watcherBuffer)
	j.watchers[id] = ch

	cancel := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		delete(j.watchers, id)
	}
	return j.status, ch, cancel
}

// result builds the measurement counts for a DONE job. The split is
// deterministic so tests can assert on it.
func (j *job) result() execution.Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	half := j.shots / 2
	return execution.Result{
		JobID:   j.id,
		Device:  j.device,
		Success: true,
		Shots:   j.shots,
		Counts:  map[string]int{"00": half, "11": j.shots - half},
	}
}
