package vcs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type call struct {
	dir  string
	args []string
}

func TestCommitRunsAddThenCommit(t *testing.T) {
	var calls []call
	g := &Git{
		run: func(_ context.Context, dir, name string, args ...string) ([]byte, error) {
			calls = append(calls, call{dir: dir, args: append([]string{name}, args...)})
			return nil, nil
		},
		now: func() time.Time { return time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC) },
	}

	require.NoError(t, g.Commit(context.Background(), "/srv/site/events.json", 2))
	require.Equal(t, []call{
		{dir: "/srv/site", args: []string{"git", "add", "events.json"}},
		{dir: "/srv/site", args: []string{"git", "commit", "-m", "Auto-add 2 new ML milestone(s) - 2026-10-14"}},
	}, calls)
}

func TestCommitReportsGitOutput(t *testing.T) {
	g := &Git{
		run: func(_ context.Context, _, _ string, args ...string) ([]byte, error) {
			if args[0] == "commit" {
				return []byte("nothing to commit, working tree clean\n"), errors.New("exit status 1")
			}
			return nil, nil
		},
		now: time.Now,
	}

	err := g.Commit(context.Background(), "events.json", 1)
	require.ErrorContains(t, err, "nothing to commit")
}

func TestCommitMissingBinary(t *testing.T) {
	g := &Git{
		run: func(context.Context, string, string, ...string) ([]byte, error) {
			return nil, errors.New(`exec: "git": executable file not found in $PATH`)
		},
		now: time.Now,
	}

	require.ErrorContains(t, g.Commit(context.Background(), "events.json", 1), "git add")
}
