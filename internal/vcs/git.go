// Package vcs commits the updated timeline with the git command line.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner executes a command in dir and returns its combined output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Git stages and commits a single file.
type Git struct {
	run Runner
	now func() time.Time
}

// NewGit returns a Git that shells out to the git binary on PATH.
func NewGit() *Git {
	return &Git{run: execRunner, now: time.Now}
}

// CommitMessage is the message used for a batch of n added milestones.
func CommitMessage(n int, day time.Time) string {
	return fmt.Sprintf("Auto-add %d new ML milestone(s) - %s", n, day.Format("2006-01-02"))
}

// Commit runs git add and git commit for path from the file's directory.
func (g *Git) Commit(ctx context.Context, path string, added int) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	if out, err := g.run(ctx, dir, "git", "add", file); err != nil {
		return fmt.Errorf("git add %s: %w: %s", file, err, strings.TrimSpace(string(out)))
	}
	msg := CommitMessage(added, g.now())
	if out, err := g.run(ctx, dir, "git", "commit", "-m", msg); err != nil {
		return fmt.Errorf("git commit: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
