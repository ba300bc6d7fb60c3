// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache owns all fetched CI state: per-repository run lists,
// per-run job caches with independent loading/error lifecycles, a
// TTL cache of previously-seen steps, and the in-flight maps that
// de-duplicate concurrent fetches. Everything is in-memory and cleared
// at process restart.
package cache

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
)

// JobState is the lifecycle of one run's job cache. Transitions are
// monotonic within a refresh cycle: unloaded -> loading -> idle|error;
// idle and error may re-enter loading on a forced refresh.
type JobState int

const (
	JobStateUnloaded JobState = iota
	JobStateLoading
	JobStateIdle
	JobStateError
)

// JobCache holds the jobs of one run plus their load lifecycle.
type JobCache struct {
	State JobState
	Jobs  []*models.Job
	Err   error
}

// Phase is the per-repository lifecycle tag.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseError
)

// RepositoryState owns everything cached for one repository.
type RepositoryState struct {
	Ref     models.RepositoryRef
	Phase   Phase
	Message string
	Runs    []*models.WorkflowRun

	jobs    map[int64]*JobCache
	display map[int64]models.Status
}

type jobFlight struct {
	done chan struct{}
	jobs []*models.Job
	err  error
}

// stepCacheTTL bounds how long previously-seen steps short-circuit the
// session protocol for inactive jobs.
const stepCacheTTL = 10 * time.Minute

// Store is the single owner of cached state. Only the orchestrator
// mutates it; readers get snapshots.
type Store struct {
	mu    sync.Mutex
	repos map[string]*RepositoryState
	order []string

	jobFlight map[RunKey]*jobFlight
	steps     *ttlcache.Cache[JobKey, []models.Step]
}

// NewStore builds an empty store.
func NewStore() *Store {
	steps := ttlcache.New[JobKey, []models.Step](
		ttlcache.WithTTL[JobKey, []models.Step](stepCacheTTL),
		ttlcache.WithCapacity[JobKey, []models.Step](4096),
	)
	go steps.Start()

	return &Store{
		repos:     make(map[string]*RepositoryState),
		jobFlight: make(map[RunKey]*jobFlight),
		steps:     steps,
	}
}

// SetRepositories replaces the tracked repository set. States for
// repositories that disappeared are destroyed, descendants included.
// Returns the identity keys that were removed.
func (s *Store) SetRepositories(refs []models.RepositoryRef) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]bool, len(refs))
	order := make([]string, 0, len(refs))
	for _, ref := range refs {
		key := ref.FullName()
		keep[key] = true
		order = append(order, key)
		if _, ok := s.repos[key]; !ok {
			s.repos[key] = &RepositoryState{
				Ref:     ref,
				jobs:    make(map[int64]*JobCache),
				display: make(map[int64]models.Status),
			}
		}
	}

	var removed []string
	for key := range s.repos {
		if !keep[key] {
			removed = append(removed, key)
			delete(s.repos, key)
		}
	}
	s.order = order
	return removed
}

// Repositories returns the tracked refs in resolution order.
func (s *Store) Repositories() []models.RepositoryRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := make([]models.RepositoryRef, 0, len(s.order))
	for _, key := range s.order {
		if st, ok := s.repos[key]; ok {
			refs = append(refs, st.Ref)
		}
	}
	return refs
}

// SetPhase records the repository lifecycle tag and message.
func (s *Store) SetPhase(owner, name string, phase Phase, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.repos[owner+"/"+name]; ok {
		st.Phase = phase
		st.Message = message
	}
}

// RepoPhase returns the lifecycle tag and message of a repository.
func (s *Store) RepoPhase(owner, name string) (Phase, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.repos[owner+"/"+name]; ok {
		return st.Phase, st.Message
	}
	return PhaseIdle, ""
}

// SetRuns replaces a repository's run list and returns the ids of runs
// that dropped off it. Job caches and display statuses of removed runs
// are garbage-collected synchronously, and every current run is
// guaranteed a job cache entry. Display statuses are upgraded
// monotonically from the raw records, never downgraded.
func (s *Store) SetRuns(owner, name string, runs []*models.WorkflowRun) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.repos[owner+"/"+name]
	if !ok {
		return nil
	}

	keep := make(map[int64]bool, len(runs))
	for _, run := range runs {
		keep[run.ID] = true
		if _, ok := st.jobs[run.ID]; !ok {
			st.jobs[run.ID] = &JobCache{State: JobStateUnloaded}
		}
		st.display[run.ID] = models.MaxStatus(st.display[run.ID], run.Status)
	}
	var removed []int64
	for id := range st.jobs {
		if !keep[id] {
			removed = append(removed, id)
			delete(st.jobs, id)
			delete(st.display, id)
		}
	}
	st.Runs = runs
	return removed
}

// Runs returns the cached run list of a repository.
func (s *Store) Runs(owner, name string) []*models.WorkflowRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.repos[owner+"/"+name]; ok {
		out := make([]*models.WorkflowRun, len(st.Runs))
		copy(out, st.Runs)
		return out
	}
	return nil
}

// DisplayStatus returns the monotonic display status of a run: the
// highest-ranked status observed during this run lifetime, including
// the all-jobs-completed upgrade applied by SetJobs.
func (s *Store) DisplayStatus(key RunKey) models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.repos[key.Owner+"/"+key.Name]; ok {
		if d, ok := st.display[key.RunID]; ok {
			return d
		}
	}
	return models.StatusUnknown
}

// JobCacheFor returns a snapshot of one run's job cache.
func (s *Store) JobCacheFor(key RunKey) JobCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.repos[key.Owner+"/"+key.Name]; ok {
		if jc, ok := st.jobs[key.RunID]; ok {
			jobs := make([]*models.Job, len(jc.Jobs))
			copy(jobs, jc.Jobs)
			return JobCache{State: jc.State, Jobs: jobs, Err: jc.Err}
		}
	}
	return JobCache{State: JobStateUnloaded}
}

// MarkJobsLoading moves a run's job cache into loading. Reports false
// when the run is unknown.
func (s *Store) MarkJobsLoading(key RunKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.repos[key.Owner+"/"+key.Name]
	if !ok {
		return false
	}
	jc, ok := st.jobs[key.RunID]
	if !ok {
		return false
	}
	jc.State = JobStateLoading
	jc.Err = nil
	return true
}

// SetJobs stores a run's fetched jobs. When every job is completed the
// run's display status is upgraded to completed even if the raw run
// record is stale; the raw record itself is left untouched.
func (s *Store) SetJobs(key RunKey, jobs []*models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.repos[key.Owner+"/"+key.Name]
	if !ok {
		return
	}
	jc, ok := st.jobs[key.RunID]
	if !ok {
		return
	}
	jc.State = JobStateIdle
	jc.Jobs = jobs
	jc.Err = nil

	if len(jobs) > 0 {
		allDone := true
		for _, j := range jobs {
			if j.Status != models.StatusCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			st.display[key.RunID] = models.MaxStatus(st.display[key.RunID], models.StatusCompleted)
		}
	}
}

// SetJobsError records a failed job fetch without touching previously
// cached jobs.
func (s *Store) SetJobsError(key RunKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.repos[key.Owner+"/"+key.Name]
	if !ok {
		return
	}
	jc, ok := st.jobs[key.RunID]
	if !ok {
		return
	}
	jc.State = JobStateError
	jc.Err = err
}

// AnyRunActive reports whether any tracked run is still queued or
// running, judged by display status.
func (s *Store) AnyRunActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.repos {
		for _, run := range st.Runs {
			d, ok := st.display[run.ID]
			if !ok {
				d = run.Status
			}
			if models.IsActive(d) {
				return true
			}
		}
	}
	return false
}

// DedupJobs guarantees at most one concurrent job fetch per run key.
// Concurrent callers share the first caller's result; only one network
// round trip occurs.
func (s *Store) DedupJobs(key RunKey, fetch func() ([]*models.Job, error)) ([]*models.Job, error) {
	s.mu.Lock()
	if fl, ok := s.jobFlight[key]; ok {
		s.mu.Unlock()
		<-fl.done
		return fl.jobs, fl.err
	}
	fl := &jobFlight{done: make(chan struct{})}
	s.jobFlight[key] = fl
	s.mu.Unlock()

	fl.jobs, fl.err = fetch()

	s.mu.Lock()
	delete(s.jobFlight, key)
	s.mu.Unlock()
	close(fl.done)

	return fl.jobs, fl.err
}

// StepsFor consults the previously-seen step cache; hits short-circuit
// session-protocol calls for inactive jobs.
func (s *Store) StepsFor(key JobKey) ([]models.Step, bool) {
	item := s.steps.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// PutSteps records the steps seen for one job position.
func (s *Store) PutSteps(key JobKey, steps []models.Step) {
	s.steps.Set(key, steps, ttlcache.DefaultTTL)
}

// Stop releases background resources.
func (s *Store) Stop() {
	s.steps.Stop()
}
