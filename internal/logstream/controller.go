// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logstream keeps virtual log documents live: a per-document
// polling loop appends or replaces content until the underlying job or
// step stops being active. Cancellation is cooperative and observed
// between ticks, never mid-request.
package logstream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/cache"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/session"
)

// DefaultPollInterval paces live-log ticks.
const DefaultPollInterval = 3 * time.Second

// DocumentSink is the virtual document host: it receives full content
// replacements for a document URI.
type DocumentSink interface {
	SetContent(uri, text string)
}

// Source provides job and step data. The controller never touches the
// cache directly; it goes through the orchestrator's fetch entry
// points so there is a single source of truth.
type Source interface {
	FetchJobsForRun(ctx context.Context, key cache.RunKey, forceRefresh bool) ([]*models.Job, error)
	JobLogs(ctx context.Context, owner, name string, jobID int64) (string, error)
	FetchStepView(ctx context.Context, key cache.JobKey, stepIndex int) (*session.JobView, error)
	FetchAllStepLogs(ctx context.Context, key cache.JobKey) (*session.JobView, error)
}

// JobRef addresses a job for streaming. A zero RunID means the run
// context is indeterminate: fetch once, do not stream.
type JobRef struct {
	Key      cache.RunKey
	JobID    int64
	JobIndex int
}

// StepRef addresses one step for streaming.
type StepRef struct {
	Key       cache.JobKey
	StepIndex int
}

type stream struct {
	uri  string
	stop chan struct{}
	once sync.Once
}

func (s *stream) requestStop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *stream) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Controller owns the stream registry, keyed by document URI. Opening
// a stream for a URI implicitly stops any prior stream for it, so a
// document never has two writers.
type Controller struct {
	source   Source
	sink     DocumentSink
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	streams map[string]*stream
}

// NewController wires a controller.
func NewController(source Source, sink DocumentSink, interval time.Duration, logger *slog.Logger) *Controller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		source:   source,
		sink:     sink,
		interval: interval,
		logger:   logger,
		streams:  make(map[string]*stream),
	}
}

// register replaces any prior stream for uri and returns the new one.
func (c *Controller) register(uri string) *stream {
	s := &stream{uri: uri, stop: make(chan struct{})}
	c.mu.Lock()
	if prev, ok := c.streams[uri]; ok {
		prev.requestStop()
	}
	c.streams[uri] = s
	c.mu.Unlock()
	return s
}

func (c *Controller) unregister(s *stream) {
	c.mu.Lock()
	if c.streams[s.uri] == s {
		delete(c.streams, s.uri)
	}
	c.mu.Unlock()
}

// write pushes content if this stream is still current and not
// stopped. Returns false when the stream must exit without writing.
func (c *Controller) write(s *stream, text string) bool {
	c.mu.Lock()
	current := c.streams[s.uri] == s
	c.mu.Unlock()
	if !current || s.stopped() {
		return false
	}
	c.sink.SetContent(s.uri, text)
	return true
}

// sleep waits one poll interval, returning false on stop.
func (s *stream) sleep(d time.Duration) bool {
	select {
	case <-s.stop:
		return false
	case <-time.After(d):
		return true
	}
}

// Stop ends the stream for a document, if any. The host must call this
// when the document closes; a forgotten stream is a resource leak.
func (c *Controller) Stop(uri string) {
	c.mu.Lock()
	s, ok := c.streams[uri]
	if ok {
		delete(c.streams, uri)
	}
	c.mu.Unlock()
	if ok {
		s.requestStop()
	}
}

// StopAll ends every stream.
func (c *Controller) StopAll() {
	c.mu.Lock()
	streams := make([]*stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.streams = make(map[string]*stream)
	c.mu.Unlock()
	for _, s := range streams {
		s.requestStop()
	}
}

// Active reports whether a stream is registered for uri.
func (c *Controller) Active(uri string) bool {
	c.mu.Lock()
	_, ok := c.streams[uri]
	c.mu.Unlock()
	return ok
}

// StartJobStream opens a live view of one job's full log under uri.
// With an indeterminate run reference the log is fetched once and not
// streamed.
func (c *Controller) StartJobStream(ctx context.Context, ref JobRef, uri string) {
	s := c.register(uri)
	go func() {
		defer c.unregister(s)
		c.streamJob(ctx, s, ref)
	}()
}

// StartStepStream opens a live view of one step's log under uri.
func (c *Controller) StartStepStream(ctx context.Context, ref StepRef, uri string) {
	s := c.register(uri)
	go func() {
		defer c.unregister(s)
		c.streamStep(ctx, s, ref)
	}()
}

// streamJob loops while the job is active. Each tick fetches the full
// log text, replaces the document when it changed, then re-derives
// liveness by re-fetching the run's jobs (hydrating steps as a side
// effect). The loop body never overlaps with itself.
func (c *Controller) streamJob(ctx context.Context, s *stream, ref JobRef) {
	if ref.Key.RunID == 0 {
		text, err := c.source.JobLogs(ctx, ref.Key.Owner, ref.Key.Name, ref.JobID)
		if err != nil {
			c.logger.Debug("one-shot job log fetch failed", "uri", s.uri, "error", err)
			return
		}
		c.write(s, text)
		return
	}

	last := ""
	for {
		if s.stopped() {
			return
		}

		text, err := c.source.JobLogs(ctx, ref.Key.Owner, ref.Key.Name, ref.JobID)
		if err != nil {
			c.logger.Debug("job log fetch failed", "uri", s.uri, "error", err)
		} else if text != last {
			if !c.write(s, text) {
				return
			}
			last = text
		}

		jobs, err := c.source.FetchJobsForRun(ctx, ref.Key, true)
		if err != nil {
			c.logger.Debug("job liveness check failed", "uri", s.uri, "error", err)
		} else if !jobStillActive(jobs, ref.JobID) {
			return
		}

		if !s.sleep(c.interval) {
			return
		}
	}
}

func jobStillActive(jobs []*models.Job, jobID int64) bool {
	for _, j := range jobs {
		if j.ID == jobID {
			return j.Active()
		}
	}
	return false
}

// streamStep loops while the step is active, using the single-step
// expanded session call each tick.
func (c *Controller) streamStep(ctx context.Context, s *stream, ref StepRef) {
	last := ""
	for {
		if s.stopped() {
			return
		}

		view, err := c.source.FetchStepView(ctx, ref.Key, ref.StepIndex)
		if err != nil {
			c.logger.Debug("step view fetch failed", "uri", s.uri, "error", err)
			if !s.sleep(c.interval) {
				return
			}
			continue
		}

		text := FormatStepLines(linesForStep(view, ref.StepIndex))
		if text != last {
			if !c.write(s, text) {
				return
			}
			last = text
		}

		if ref.StepIndex >= len(view.Steps) || !models.IsActive(view.Steps[ref.StepIndex].Status) {
			return
		}

		if !s.sleep(c.interval) {
			return
		}
	}
}

func linesForStep(view *session.JobView, stepIndex int) []models.LogLine {
	for _, sl := range view.Logs {
		if sl.Step == stepIndex {
			return sl.Lines
		}
	}
	return nil
}

// NoLogsPlaceholder renders when a step has produced no lines yet.
const NoLogsPlaceholder = "(no log output yet)"

// FormatStepLines renders log lines as "timestamp | message".
func FormatStepLines(lines []models.LogLine) string {
	if len(lines) == 0 {
		return NoLogsPlaceholder
	}
	var b strings.Builder
	for _, line := range lines {
		ts := time.Unix(int64(line.Timestamp), 0).UTC().Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "%s | %s\n", ts, line.Message)
	}
	return b.String()
}

const bannerWidth = 72

// stepBanner renders the fixed-width header separating steps in a
// whole-job dump.
func stepBanner(index int, name string) string {
	head := fmt.Sprintf("===== Step %d: %s ", index, name)
	if len(head) < bannerWidth {
		head += strings.Repeat("=", bannerWidth-len(head))
	}
	return head
}

// FormatJobLogs renders every step's lines, each preceded by its
// banner.
func FormatJobLogs(view *session.JobView) string {
	var b strings.Builder
	for _, step := range view.Steps {
		b.WriteString(stepBanner(step.Index, step.Name))
		b.WriteString("\n")
		b.WriteString(FormatStepLines(linesForStep(view, step.Index)))
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return NoLogsPlaceholder
	}
	return b.String()
}
