// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package refresh drives the polling sweep: it resolves the active
// repository set, fans fetches out through bounded worker pools,
// populates the cache, feeds the tree differ, and reports whether
// anything is still running so the scheduler can pick a poll interval.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/api"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/cache"
	apperrors "github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/errors"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/session"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/tree"
)

// Config bounds the sweep.
type Config struct {
	// RepoConcurrency is the repository fan-out pool size.
	RepoConcurrency int
	// JobConcurrency is the per-repository job fan-out pool size.
	JobConcurrency int
	// MaxRuns caps runs fetched per repository.
	MaxRuns int
	// MaxJobs caps jobs kept per run.
	MaxJobs int
	// RepollDelay is the single-shot delay before re-fetching a run
	// that still has active jobs.
	RepollDelay time.Duration
}

// DefaultConfig mirrors the extension's defaults.
func DefaultConfig() Config {
	return Config{
		RepoConcurrency: 4,
		JobConcurrency:  3,
		MaxRuns:         20,
		MaxJobs:         50,
		RepollDelay:     10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RepoConcurrency <= 0 {
		c.RepoConcurrency = d.RepoConcurrency
	}
	if c.JobConcurrency <= 0 {
		c.JobConcurrency = d.JobConcurrency
	}
	if c.MaxRuns <= 0 {
		c.MaxRuns = d.MaxRuns
	}
	if c.MaxJobs <= 0 {
		c.MaxJobs = d.MaxJobs
	}
	if c.RepollDelay <= 0 {
		c.RepollDelay = d.RepollDelay
	}
	return c
}

// Resolver produces the active repository set. Discovery is an
// external collaborator; only its output feeds the sweep.
type Resolver interface {
	Resolve(ctx context.Context) ([]models.RepositoryRef, error)
}

type refreshFlight struct {
	done   chan struct{}
	active bool
	err    error
}

// Orchestrator is the single long-lived owner of refresh state. No
// ambient globals: everything it touches hangs off this struct.
type Orchestrator struct {
	client   *api.Client
	store    *cache.Store
	differ   *tree.Differ
	resolver Resolver
	cfg      Config
	logger   *slog.Logger

	mu         sync.Mutex
	sessions   map[string]*session.Fetcher
	refreshing *refreshFlight
	repoll     map[cache.RunKey]*time.Timer
}

// New wires an orchestrator.
func New(client *api.Client, store *cache.Store, differ *tree.Differ, resolver Resolver, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:   client,
		store:    store,
		differ:   differ,
		resolver: resolver,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		sessions: make(map[string]*session.Fetcher),
		repoll:   make(map[cache.RunKey]*time.Timer),
	}
}

// Store exposes the cache for read-only consumers.
func (o *Orchestrator) Store() *cache.Store {
	return o.store
}

// Differ exposes the tree differ.
func (o *Orchestrator) Differ() *tree.Differ {
	return o.differ
}

// sessionFor returns the repository's session fetcher, creating it on
// first use. Sessions hold private CSRF state and are never shared
// across repositories.
func (o *Orchestrator) sessionFor(owner, name string) *session.Fetcher {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := owner + "/" + name
	f, ok := o.sessions[key]
	if !ok {
		f = session.NewFetcher(o.client, owner, name, o.logger)
		o.sessions[key] = f
	}
	return f
}

// RefreshAll runs one full sweep and reports whether any run is still
// active. Only one sweep is in flight at a time; concurrent callers
// join the running one and share its result.
func (o *Orchestrator) RefreshAll(ctx context.Context) (bool, error) {
	o.mu.Lock()
	if fl := o.refreshing; fl != nil {
		o.mu.Unlock()
		<-fl.done
		return fl.active, fl.err
	}
	fl := &refreshFlight{done: make(chan struct{})}
	o.refreshing = fl
	o.mu.Unlock()

	fl.active, fl.err = o.sweep(ctx)

	o.mu.Lock()
	o.refreshing = nil
	o.mu.Unlock()
	close(fl.done)

	return fl.active, fl.err
}

func (o *Orchestrator) sweep(ctx context.Context) (bool, error) {
	// Configuration errors block the sweep before any network call.
	if o.client.BaseURL() == "" {
		return false, &apperrors.ConfigError{Field: "base_url", Message: "no Gitea instance configured"}
	}
	if !o.client.HasToken() {
		return false, &apperrors.ConfigError{Field: "token", Message: "no access token configured"}
	}

	repos, err := o.resolver.Resolve(ctx)
	if err != nil {
		return false, err
	}

	removed := o.store.SetRepositories(repos)
	if len(removed) > 0 {
		o.clearRepollFor(removed)
	}
	o.differ.SetRepositories(repos)

	RunLimited(o.cfg.RepoConcurrency, repos, func(ref models.RepositoryRef) {
		o.refreshRepo(ctx, ref)
	})

	// Secondary pass: runs expanded while offline, or whose first
	// fetch failed, get one more attempt without re-running the sweep.
	needy := o.differ.ExpandedRunsNeedingJobs(func(key cache.RunKey) cache.JobState {
		return o.store.JobCacheFor(key).State
	})
	RunLimited(o.cfg.JobConcurrency, needy, func(key cache.RunKey) {
		if _, err := o.FetchJobsForRun(ctx, key, false); err != nil {
			o.logger.Debug("secondary job fetch failed", "repo", key.Owner+"/"+key.Name, "run", key.RunID, "error", err)
		}
	})

	return o.store.AnyRunActive(), nil
}

// refreshRepo fetches one repository's runs and fans out job fetches.
// Failure is isolated: recorded on the repository, logged, and never
// propagated to siblings.
func (o *Orchestrator) refreshRepo(ctx context.Context, ref models.RepositoryRef) {
	owner, name := ref.Owner, ref.Name

	o.store.SetPhase(owner, name, cache.PhaseLoading, "")
	o.differ.SetRepositoryPhase(owner, name, cache.PhaseLoading, "")

	runs, err := o.client.ListRuns(ctx, owner, name, o.cfg.MaxRuns)
	if err != nil {
		msg := apperrors.FormatUserError(err)
		o.store.SetPhase(owner, name, cache.PhaseError, msg)
		o.differ.SetRepositoryPhase(owner, name, cache.PhaseError, msg)
		o.logger.Warn("run fetch failed", "repo", owner+"/"+name, "error", err)
		return
	}

	// A pending re-poll for a run that dropped off the list would fire
	// against a pruned run; drop those timers with the cache entries.
	for _, runID := range o.store.SetRuns(owner, name, runs) {
		o.clearRepoll(cache.RunKey{Owner: owner, Name: name, RunID: runID})
	}
	o.updateRunNodes(owner, name)

	// Lazy by default: an idle, never-expanded, completed run's jobs
	// are not fetched.
	var wanted []cache.RunKey
	for _, run := range runs {
		key := cache.RunKey{Owner: owner, Name: name, RunID: run.ID}
		jc := o.store.JobCacheFor(key)
		switch {
		case models.IsActive(o.store.DisplayStatus(key)):
			wanted = append(wanted, key)
		case o.differ.IsExpanded(tree.RunIdentity(owner, name, run.ID)):
			wanted = append(wanted, key)
		case jc.State != cache.JobStateUnloaded:
			wanted = append(wanted, key)
		}
	}

	RunLimited(o.cfg.JobConcurrency, wanted, func(key cache.RunKey) {
		if _, err := o.FetchJobsForRun(ctx, key, false); err != nil {
			o.logger.Debug("job fetch failed", "repo", owner+"/"+name, "run", key.RunID, "error", err)
		}
	})

	o.store.SetPhase(owner, name, cache.PhaseIdle, "")
	o.differ.SetRepositoryPhase(owner, name, cache.PhaseIdle, "")
}

// updateRunNodes re-diffs a repository's run nodes against the cache,
// picking up display-status upgrades.
func (o *Orchestrator) updateRunNodes(owner, name string) {
	runs := o.store.Runs(owner, name)
	o.differ.UpdateRuns(owner, name, runs, func(runID int64) models.Status {
		return o.store.DisplayStatus(cache.RunKey{Owner: owner, Name: name, RunID: runID})
	})
}

// FetchJobsForRun fetches and hydrates one run's jobs. Concurrent
// callers for the same run share a single network round trip. Without
// forceRefresh a settled, inactive run is served from cache.
func (o *Orchestrator) FetchJobsForRun(ctx context.Context, key cache.RunKey, forceRefresh bool) ([]*models.Job, error) {
	if !forceRefresh {
		jc := o.store.JobCacheFor(key)
		if jc.State == cache.JobStateIdle && !anyJobActive(jc.Jobs) {
			return jc.Jobs, nil
		}
	}

	jobs, err := o.store.DedupJobs(key, func() ([]*models.Job, error) {
		return o.fetchJobs(ctx, key, forceRefresh)
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func anyJobActive(jobs []*models.Job) bool {
	for _, j := range jobs {
		if j.Active() {
			return true
		}
	}
	return false
}

func (o *Orchestrator) fetchJobs(ctx context.Context, key cache.RunKey, force bool) ([]*models.Job, error) {
	if o.store.MarkJobsLoading(key) {
		o.differ.InvalidateRun(key)
	}

	jobs, err := o.client.ListJobs(ctx, key.Owner, key.Name, key.RunID)
	if err != nil {
		o.store.SetJobsError(key, err)
		o.differ.InvalidateRun(key)
		return nil, err
	}
	if len(jobs) > o.cfg.MaxJobs {
		jobs = jobs[:o.cfg.MaxJobs]
	}

	// Hydration is requested only for jobs missing steps or still
	// active, or when the refresh is forced; finished step data is not
	// re-fetched on every tick.
	for i, job := range jobs {
		if job.Steps == nil || job.Active() || force {
			o.hydrateJob(ctx, key, i, job, force)
		}
	}

	o.store.SetJobs(key, jobs)
	o.differ.UpdateJobs(key, jobs)
	o.updateRunNodes(key.Owner, key.Name)

	if anyJobActive(jobs) {
		o.scheduleRepoll(key)
	} else {
		o.clearRepoll(key)
	}

	return jobs, nil
}

// hydrateJob attaches step detail via the session protocol. Errors are
// recorded on the job and logged; they never fail the run's refresh.
func (o *Orchestrator) hydrateJob(ctx context.Context, key cache.RunKey, jobIndex int, job *models.Job, force bool) {
	jobKey := cache.JobKey{Owner: key.Owner, Name: key.Name, RunID: key.RunID, JobIndex: jobIndex}

	if !force && !job.Active() {
		if steps, ok := o.store.StepsFor(jobKey); ok {
			job.Steps = steps
			return
		}
	}

	runNumber, ok := o.runNumberFor(key)
	if !ok {
		return
	}

	view, err := o.sessionFor(key.Owner, key.Name).FetchSteps(ctx, runNumber, jobIndex)
	if err != nil {
		job.StepsError = err.Error()
		o.logger.Debug("step hydration failed", "repo", key.Owner+"/"+key.Name, "run", key.RunID, "job", jobIndex, "error", err)
		return
	}
	if len(view.Steps) == 0 {
		// Partial data from the session protocol means "no data yet",
		// not an error.
		o.logger.Debug("session protocol returned no steps", "repo", key.Owner+"/"+key.Name, "run", key.RunID, "job", jobIndex)
		return
	}

	job.Steps = view.Steps
	job.StepsError = ""
	o.store.PutSteps(jobKey, view.Steps)
}

func (o *Orchestrator) runNumberFor(key cache.RunKey) (int64, bool) {
	for _, run := range o.store.Runs(key.Owner, key.Name) {
		if run.ID == key.RunID {
			if run.RunNumber != 0 {
				return run.RunNumber, true
			}
			return run.ID, true
		}
	}
	return 0, false
}

// scheduleRepoll arms a single-shot timer that re-fetches a run still
// containing active jobs. Timers are keyed per run and replaced, so at
// most one is pending per run.
func (o *Orchestrator) scheduleRepoll(key cache.RunKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.repoll[key]; ok {
		t.Stop()
	}
	o.repoll[key] = time.AfterFunc(o.cfg.RepollDelay, func() {
		o.mu.Lock()
		delete(o.repoll, key)
		o.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), api.DefaultTimeout)
		defer cancel()
		if _, err := o.FetchJobsForRun(ctx, key, true); err != nil {
			o.logger.Debug("re-poll fetch failed", "repo", key.Owner+"/"+key.Name, "run", key.RunID, "error", err)
		}
	})
}

func (o *Orchestrator) clearRepoll(key cache.RunKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.repoll[key]; ok {
		t.Stop()
		delete(o.repoll, key)
	}
}

func (o *Orchestrator) clearRepollFor(removedRepos []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, t := range o.repoll {
		for _, repo := range removedRepos {
			if key.Owner+"/"+key.Name == repo {
				t.Stop()
				delete(o.repoll, key)
			}
		}
	}
	for id := range o.sessions {
		for _, repo := range removedRepos {
			if id == repo {
				delete(o.sessions, id)
			}
		}
	}
}

// Close stops pending timers and cache resources.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for key, t := range o.repoll {
		t.Stop()
		delete(o.repoll, key)
	}
	o.mu.Unlock()
	o.store.Stop()
}

// JobLogs fetches the full raw log text for one job.
func (o *Orchestrator) JobLogs(ctx context.Context, owner, name string, jobID int64) (string, error) {
	return o.client.JobLogs(ctx, owner, name, jobID)
}

// FetchStepView polls the session protocol with exactly one step's log
// expanded. The log stream controller consumes this each tick.
func (o *Orchestrator) FetchStepView(ctx context.Context, key cache.JobKey, stepIndex int) (*session.JobView, error) {
	runNumber, ok := o.runNumberFor(key.RunKeyOf())
	if !ok {
		runNumber = key.RunID
	}
	stepCount := 0
	if steps, ok := o.store.StepsFor(key); ok {
		stepCount = len(steps)
	}
	return o.sessionFor(key.Owner, key.Name).FetchStep(ctx, runNumber, key.JobIndex, stepIndex, stepCount)
}

// FetchAllStepLogs polls the session protocol with every step's log
// expanded, for whole-job log dumps.
func (o *Orchestrator) FetchAllStepLogs(ctx context.Context, key cache.JobKey) (*session.JobView, error) {
	runNumber, ok := o.runNumberFor(key.RunKeyOf())
	if !ok {
		runNumber = key.RunID
	}
	stepCount := 0
	if steps, ok := o.store.StepsFor(key); ok {
		stepCount = len(steps)
	}
	return o.sessionFor(key.Owner, key.Name).FetchAllSteps(ctx, runNumber, key.JobIndex, stepCount)
}
