// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemoteURL(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		host  string
		owner string
		repo  string
		ok    bool
	}{
		{"https", "https://git.example.com/acme/widgets.git", "git.example.com", "acme", "widgets", true},
		{"https no suffix", "https://git.example.com/acme/widgets", "git.example.com", "acme", "widgets", true},
		{"https with port", "https://git.example.com:3000/acme/widgets.git", "git.example.com", "acme", "widgets", true},
		{"http", "http://localhost:3000/acme/widgets", "localhost", "acme", "widgets", true},
		{"ssh scheme", "ssh://git@git.example.com/acme/widgets.git", "git.example.com", "acme", "widgets", true},
		{"ssh scheme with port", "ssh://git@git.example.com:2222/acme/widgets.git", "git.example.com", "acme", "widgets", true},
		{"scp form", "git@git.example.com:acme/widgets.git", "git.example.com", "acme", "widgets", true},
		{"scp form no suffix", "git@git.example.com:acme/widgets", "git.example.com", "acme", "widgets", true},
		{"scp without user", "git.example.com:acme/widgets.git", "git.example.com", "acme", "widgets", true},
		{"nested path keeps trailing pair", "https://git.example.com/org/group/widgets.git", "git.example.com", "group", "widgets", true},
		{"empty", "", "", "", "", false},
		{"no owner", "https://git.example.com/widgets", "", "", "", false},
		{"garbage", "not a url at all", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := ParseRemoteURL(tt.raw)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.host, ref.Host)
				assert.Equal(t, tt.owner, ref.Owner)
				assert.Equal(t, tt.repo, ref.Name)
			}
		})
	}
}

func TestHostMatches(t *testing.T) {
	assert.True(t, HostMatches("git.example.com", "git.example.com"))
	assert.True(t, HostMatches("Git.Example.COM", "git.example.com"))
	assert.True(t, HostMatches("git.example.com:3000", "git.example.com"))
	assert.True(t, HostMatches("git.example.com:3000", "git.example.com:443"))
	assert.False(t, HostMatches("git.example.com", "git.other.com"))
}

func TestResolvePinned(t *testing.T) {
	t.Run("valid entries", func(t *testing.T) {
		r := NewResolver(nil, ModePinned, "https://git.example.com:3000",
			[]string{"acme/widgets", " acme/gadgets "}, nil, 0)

		refs, err := r.Resolve(context.Background())
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "acme", refs[0].Owner)
		assert.Equal(t, "widgets", refs[0].Name)
		assert.Equal(t, "git.example.com", refs[0].Host, "port stripped from host")
		assert.Equal(t, "gadgets", refs[1].Name)
	})

	t.Run("malformed entry", func(t *testing.T) {
		r := NewResolver(nil, ModePinned, "https://git.example.com", []string{"noslash"}, nil, 0)
		_, err := r.Resolve(context.Background())
		assert.ErrorContains(t, err, "invalid pinned repository")
	})

	t.Run("empty owner", func(t *testing.T) {
		r := NewResolver(nil, ModePinned, "https://git.example.com", []string{"/widgets"}, nil, 0)
		_, err := r.Resolve(context.Background())
		assert.Error(t, err)
	})
}

func TestResolveWorkspaceSkipsNonGitDirs(t *testing.T) {
	// A temp dir has no git remotes; resolution succeeds with nothing.
	r := NewResolver(nil, ModeWorkspace, "https://git.example.com", nil, []string{t.TempDir()}, 0)
	refs, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, refs)
}
