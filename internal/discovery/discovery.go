// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package discovery resolves the active repository set: workspace git
// remotes, an explicit pinned list, or everything the token can see.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/api"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
)

// Mode selects how repositories are discovered.
type Mode string

const (
	ModeWorkspace Mode = "workspace"
	ModePinned    Mode = "pinned"
	ModeAll       Mode = "all"
)

// scpPattern matches SCP-style remotes: git@host:owner/name(.git)
var scpPattern = regexp.MustCompile(`^(?:[\w.-]+@)?([\w.-]+):([^/:][^/]*)/(.+?)(?:\.git)?/?$`)

// ParseRemoteURL extracts a RepositoryRef from a git remote URL.
// HTTPS, SSH, and SCP-style forms are supported.
func ParseRemoteURL(raw string) (models.RepositoryRef, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.RepositoryRef{}, false
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return models.RepositoryRef{}, false
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 {
			return models.RepositoryRef{}, false
		}
		name := strings.TrimSuffix(parts[len(parts)-1], ".git")
		owner := parts[len(parts)-2]
		if owner == "" || name == "" {
			return models.RepositoryRef{}, false
		}
		return models.RepositoryRef{
			Host:  u.Hostname(),
			Owner: owner,
			Name:  name,
			URL:   raw,
		}, true
	}

	if m := scpPattern.FindStringSubmatch(raw); m != nil {
		host := m[1]
		owner := m[2]
		name := m[3]
		// Nested groups keep only the trailing owner/name pair.
		if i := strings.LastIndex(name, "/"); i >= 0 {
			owner = name[:i]
			if j := strings.LastIndex(owner, "/"); j >= 0 {
				owner = owner[j+1:]
			}
			name = name[i+1:]
		}
		return models.RepositoryRef{Host: host, Owner: owner, Name: name, URL: raw}, true
	}

	return models.RepositoryRef{}, false
}

// HostMatches compares two hosts case-insensitively, ignoring port.
func HostMatches(a, b string) bool {
	return strings.EqualFold(stripPort(a), stripPort(b))
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}

// Resolver implements the repository-discovery collaborator.
type Resolver struct {
	client   *api.Client
	mode     Mode
	baseHost string
	pinned   []string
	roots    []string
	maxRepos int
}

// NewResolver builds a resolver. baseURL is the configured instance;
// pinned entries are owner/name strings; roots are workspace
// directories whose git remotes are inspected.
func NewResolver(client *api.Client, mode Mode, baseURL string, pinned, roots []string, maxRepos int) *Resolver {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	if maxRepos <= 0 {
		maxRepos = 50
	}
	return &Resolver{
		client:   client,
		mode:     mode,
		baseHost: host,
		pinned:   pinned,
		roots:    roots,
		maxRepos: maxRepos,
	}
}

// Resolve returns the active repository set for the configured mode.
func (r *Resolver) Resolve(ctx context.Context) ([]models.RepositoryRef, error) {
	switch r.mode {
	case ModePinned:
		return r.resolvePinned()
	case ModeAll:
		return r.client.SearchRepositories(ctx, stripPort(r.baseHost), r.maxRepos)
	default:
		return r.resolveWorkspace(ctx)
	}
}

func (r *Resolver) resolvePinned() ([]models.RepositoryRef, error) {
	refs := make([]models.RepositoryRef, 0, len(r.pinned))
	for _, entry := range r.pinned {
		parts := strings.SplitN(strings.TrimSpace(entry), "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid pinned repository %q, want owner/name", entry)
		}
		refs = append(refs, models.RepositoryRef{
			Host:  stripPort(r.baseHost),
			Owner: parts[0],
			Name:  parts[1],
		})
	}
	return refs, nil
}

// resolveWorkspace inspects each root's git remotes and keeps those
// whose host matches the configured instance, ignoring port.
func (r *Resolver) resolveWorkspace(ctx context.Context) ([]models.RepositoryRef, error) {
	seen := make(map[string]bool)
	var refs []models.RepositoryRef

	for _, root := range r.roots {
		for _, remote := range remoteURLs(ctx, root) {
			ref, ok := ParseRemoteURL(remote)
			if !ok || !HostMatches(ref.Host, r.baseHost) {
				continue
			}
			if seen[ref.FullName()] {
				continue
			}
			seen[ref.FullName()] = true
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func remoteURLs(ctx context.Context, dir string) []string {
	cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "git", "-C", dir, "remote", "-v")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil
	}

	var urls []string
	for _, line := range strings.Split(out.String(), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			urls = append(urls, fields[1])
		}
	}
	return urls
}
