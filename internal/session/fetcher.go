// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session speaks the undocumented job-view protocol: the same
// endpoint the web UI polls for step state and log lines. It mimics a
// browser session (CSRF token + cookie replay) rather than the
// token-authenticated API, because no official API covers step logs.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/api"
	apperrors "github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/errors"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/retry"
)

// LogCursor is one entry of the logCursors request body: one per step
// in the job, expanded only for the steps whose log lines the caller
// wants.
type LogCursor struct {
	Step     int             `json:"step"`
	Cursor   json.RawMessage `json:"cursor"`
	Expanded bool            `json:"expanded"`
}

type viewRequest struct {
	LogCursors []LogCursor `json:"logCursors"`
}

// viewStep is the step shape of the session protocol. Status carries
// conclusion-shaped strings for finished steps.
type viewStep struct {
	Summary  string `json:"summary"`
	Duration string `json:"duration"`
	Status   string `json:"status"`
}

type viewResponse struct {
	State struct {
		CurrentJob struct {
			Steps []viewStep `json:"steps"`
		} `json:"currentJob"`
	} `json:"state"`
	Logs struct {
		StepsLog []models.StepLog `json:"stepsLog"`
	} `json:"logs"`
}

// JobView is the typed result of one job-view call.
type JobView struct {
	Steps []models.Step
	Logs  []models.StepLog
}

// ReclassifyStatus maps a view-protocol status string into the
// (status, conclusion) pair. Finished steps come back with
// conclusion-shaped statuses; in-progress and queued steps keep a true
// status and no conclusion.
type ReclassifyStatus func(raw string) (models.Status, models.Conclusion)

// DefaultReclassify treats any string that normalizes to a real
// conclusion as "completed with that conclusion". This is a heuristic
// over an inconsistent upstream, so it is swappable policy.
func DefaultReclassify(raw string) (models.Status, models.Conclusion) {
	c := models.NormalizeConclusion(raw)
	if c != models.ConclusionNone && c != models.ConclusionUnknown {
		return models.StatusCompleted, c
	}
	return models.NormalizeStatus(raw), models.ConclusionNone
}

// Fetcher owns the CSRF token and cookie pair for one repository's
// session. That state must never be shared across repositories or
// hosts, so each repository gets its own instance.
type Fetcher struct {
	client     *api.Client
	owner      string
	name       string
	breaker    *retry.CircuitBreaker
	logger     *slog.Logger
	reclassify ReclassifyStatus

	mu        sync.Mutex
	csrfToken string
	cookies   []string
	acquired  bool
}

// NewFetcher builds a session fetcher for one repository.
func NewFetcher(client *api.Client, owner, name string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:     client,
		owner:      owner,
		name:       name,
		breaker:    retry.NewCircuitBreaker(5, 30*time.Second),
		logger:     logger,
		reclassify: DefaultReclassify,
	}
}

// SetReclassify overrides the status-reclassification policy.
func (f *Fetcher) SetReclassify(fn ReclassifyStatus) {
	f.reclassify = fn
}

func (f *Fetcher) runPagePath(runNumber int64) string {
	return fmt.Sprintf("/%s/%s/actions/runs/%d", url.PathEscape(f.owner), url.PathEscape(f.name), runNumber)
}

func (f *Fetcher) jobViewPath(runNumber int64, jobIndex int) string {
	return fmt.Sprintf("/%s/%s/actions/runs/%d/jobs/%d", url.PathEscape(f.owner), url.PathEscape(f.name), runNumber, jobIndex)
}

// ensureSession lazily acquires the CSRF token and session cookie by
// loading the run's human-facing page. A missing token is logged and
// tolerated: the POST is attempted without it.
func (f *Fetcher) ensureSession(ctx context.Context, runNumber int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquired {
		return nil
	}

	resp, err := f.client.Do(ctx, http.MethodGet, f.runPagePath(runNumber),
		map[string]string{"Accept": "text/html"}, nil, 0)
	if err != nil {
		return err
	}

	f.csrfToken = extractToken(resp.Header, resp.Body)
	f.cookies = extractCookies(resp.Header)
	f.acquired = true

	if f.csrfToken == "" {
		f.logger.Debug("no CSRF token found on run page, proceeding without one",
			"repo", f.owner+"/"+f.name, "run", runNumber)
	}
	return nil
}

func (f *Fetcher) resetSession() {
	f.mu.Lock()
	f.csrfToken = ""
	f.cookies = nil
	f.acquired = false
	f.mu.Unlock()
}

func (f *Fetcher) sessionHeaders() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	headers := map[string]string{}
	if f.csrfToken != "" {
		headers["x-csrf-token"] = f.csrfToken
	}
	if len(f.cookies) > 0 {
		headers["Cookie"] = strings.Join(f.cookies, "; ")
	}
	return headers
}

func (f *Fetcher) postView(ctx context.Context, runNumber int64, jobIndex int, cursors []LogCursor) (*api.Response, error) {
	if err := f.ensureSession(ctx, runNumber); err != nil {
		return nil, err
	}
	if cursors == nil {
		cursors = []LogCursor{}
	}
	return f.client.PostJSON(ctx, f.jobViewPath(runNumber, jobIndex), f.sessionHeaders(), viewRequest{LogCursors: cursors})
}

// fetchView executes one job-view POST. A rejection whose body
// contains "CSRF" discards the session, re-acquires a token, and
// retries exactly once; a second failure is surfaced as a real error.
func (f *Fetcher) fetchView(ctx context.Context, runNumber int64, jobIndex int, cursors []LogCursor) (*viewResponse, error) {
	var view *viewResponse
	err := f.breaker.Call(func() error {
		resp, err := f.postView(ctx, runNumber, jobIndex, cursors)
		if err != nil {
			return err
		}

		if !resp.OK() && bytes.Contains(resp.Body, []byte("CSRF")) {
			f.logger.Debug("CSRF rejection, refreshing session and retrying once",
				"repo", f.owner+"/"+f.name, "run", runNumber, "job", jobIndex)
			f.resetSession()

			resp, err = f.postView(ctx, runNumber, jobIndex, cursors)
			if err != nil {
				return err
			}
			if !resp.OK() {
				return &apperrors.ProtocolError{
					Operation: "job view",
					Message:   fmt.Sprintf("CSRF retry failed with status %d", resp.StatusCode),
				}
			}
		} else if !resp.OK() {
			return api.ParseError(resp)
		}

		var v viewResponse
		if err := json.Unmarshal(resp.Body, &v); err != nil {
			return &apperrors.ProtocolError{
				Operation: "job view",
				Message:   "unparseable response body",
				Err:       err,
			}
		}
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func buildCursors(stepCount int, expanded func(i int) bool) []LogCursor {
	cursors := make([]LogCursor, 0, stepCount)
	for i := 0; i < stepCount; i++ {
		cursors = append(cursors, LogCursor{Step: i, Cursor: nil, Expanded: expanded(i)})
	}
	return cursors
}

func (f *Fetcher) toJobView(v *viewResponse) *JobView {
	steps := make([]models.Step, 0, len(v.State.CurrentJob.Steps))
	for i, s := range v.State.CurrentJob.Steps {
		status, conclusion := f.reclassify(s.Status)
		steps = append(steps, models.Step{
			Index:      i,
			Name:       s.Summary,
			Status:     status,
			Conclusion: conclusion,
			Duration:   s.Duration,
		})
	}
	return &JobView{Steps: steps, Logs: v.Logs.StepsLog}
}

// stepCountFor resolves the step count when the caller does not know
// it yet: a state-only POST returns the step list without log lines.
func (f *Fetcher) stepCountFor(ctx context.Context, runNumber int64, jobIndex, stepCount int) (int, error) {
	if stepCount > 0 {
		return stepCount, nil
	}
	v, err := f.fetchView(ctx, runNumber, jobIndex, nil)
	if err != nil {
		return 0, err
	}
	return len(v.State.CurrentJob.Steps), nil
}

// FetchSteps fetches step state only, no log lines expanded. Used for
// hydration, where the caller wants step status without log payloads.
func (f *Fetcher) FetchSteps(ctx context.Context, runNumber int64, jobIndex int) (*JobView, error) {
	v, err := f.fetchView(ctx, runNumber, jobIndex, nil)
	if err != nil {
		return nil, err
	}
	return f.toJobView(v), nil
}

// FetchStep fetches the job view with exactly one step's log expanded.
func (f *Fetcher) FetchStep(ctx context.Context, runNumber int64, jobIndex, stepIndex, stepCount int) (*JobView, error) {
	count, err := f.stepCountFor(ctx, runNumber, jobIndex, stepCount)
	if err != nil {
		return nil, err
	}
	v, err := f.fetchView(ctx, runNumber, jobIndex, buildCursors(count, func(i int) bool { return i == stepIndex }))
	if err != nil {
		return nil, err
	}
	return f.toJobView(v), nil
}

// FetchAllSteps fetches the job view with every step's log expanded.
func (f *Fetcher) FetchAllSteps(ctx context.Context, runNumber int64, jobIndex, stepCount int) (*JobView, error) {
	count, err := f.stepCountFor(ctx, runNumber, jobIndex, stepCount)
	if err != nil {
		return nil, err
	}
	v, err := f.fetchView(ctx, runNumber, jobIndex, buildCursors(count, func(int) bool { return true }))
	if err != nil {
		return nil, err
	}
	return f.toJobView(v), nil
}
