package job

import "sync"

// registry maps fingerprints to their active job.
type registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func newRegistry() *registry {
	return &registry{
		jobs: make(map[string]*Job),
	}
}

// insertIfAbsent registers j under its fingerprint unless a job is already
// active there, in which case that job is returned with false.
func (r *registry) insertIfAbsent(j *Job) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.jobs[j.ID]; exists {
		return existing, false
	}
	r.jobs[j.ID] = j
	return j, true
}

// release removes j if it is still the job registered under its fingerprint.
func (r *registry) release(j *Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.jobs[j.ID] != j {
		return false
	}
	delete(r.jobs, j.ID)
	return true
}

// get retrieves the active job of a fingerprint.
func (r *registry) get(fp string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, exists := r.jobs[fp]
	return j, exists
}

// list returns all active jobs by fingerprint.
func (r *registry) list() map[string]*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Job, len(r.jobs))
	for fp, j := range r.jobs {
		result[fp] = j
	}
	return result
}
