// Package git runs git commands for stores that keep document history in a
// repository.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Client wraps git command execution with a file-based lock for process safety.
type Client struct {
	WorkDir string
	Logger  *slog.Logger

	// AuthorName and AuthorEmail, when set, override the configured identity
	// for commits made through this client.
	AuthorName  string
	AuthorEmail string

	lockPath string
}

// Commit is one entry of the history of a path.
type Commit struct {
	Hash    string
	Author  string
	When    time.Time
	Subject string
}

// NewClient creates a git client for workDir. lockName is the file, relative
// to workDir, used to serialize writers.
func NewClient(workDir, lockName string, logger *slog.Logger) *Client {
	if lockName == "" {
		lockName = ".lims.lock"
	}
	return &Client{
		WorkDir:  workDir,
		Logger:   logger,
		lockPath: lockName,
	}
}

// IsInstalled reports whether a git binary is on the PATH.
func IsInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Lock acquires the file lock, polling until it is free or ctx is done.
func (c *Client) Lock(ctx context.Context) (func(), error) {
	full := filepath.Join(c.WorkDir, c.lockPath)
	for {
		f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL, 0o666)
		if err == nil {
			f.Close()
			return func() { os.Remove(full) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", c.lockPath, ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Run executes a raw git command in the working directory.
// It does not take the lock; callers serialize writes through Lock.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	if c.Logger != nil {
		c.Logger.Debug("executing git", "args", args, "dir", c.WorkDir)
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.WorkDir
	cmd.Env = os.Environ()
	if c.AuthorName != "" {
		cmd.Env = append(cmd.Env, "GIT_AUTHOR_NAME="+c.AuthorName, "GIT_COMMITTER_NAME="+c.AuthorName)
	}
	if c.AuthorEmail != "" {
		cmd.Env = append(cmd.Env, "GIT_AUTHOR_EMAIL="+c.AuthorEmail, "GIT_COMMITTER_EMAIL="+c.AuthorEmail)
	}

	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		return output, fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, output)
	}
	return strings.TrimSpace(output), nil
}

// Init initializes a repository. Re-running it is harmless.
func (c *Client) Init(ctx context.Context) error {
	_, err := c.Run(ctx, "init")
	return err
}

// IsRepo reports whether the working directory is inside a repository.
func (c *Client) IsRepo(ctx context.Context) bool {
	out, err := c.Run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

func (c *Client) Add(ctx context.Context, files ...string) error {
	if len(files) == 0 {
		return nil
	}
	_, err := c.Run(ctx, append([]string{"add", "--"}, files...)...)
	return err
}

func (c *Client) Rm(ctx context.Context, files ...string) error {
	if len(files) == 0 {
		return nil
	}
	_, err := c.Run(ctx, append([]string{"rm", "-f", "--"}, files...)...)
	return err
}

// Staged reports whether the index differs from HEAD for files (or for the
// whole tree when none are given).
func (c *Client) Staged(ctx context.Context, files ...string) (bool, error) {
	args := append([]string{"diff", "--cached", "--quiet", "--"}, files...)
	_, err := c.Run(ctx, args...)
	if err == nil {
		return false, nil
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) && exit.ExitCode() == 1 {
		return true, nil
	}
	return false, err
}

// Commit records the staged changes.
func (c *Client) Commit(ctx context.Context, msg string) error {
	_, err := c.Run(ctx, "commit", "-m", msg)
	return err
}

// Log returns up to n commits touching path, newest first. n <= 0 means all.
func (c *Client) Log(ctx context.Context, path string, n int) ([]Commit, error) {
	args := []string{"log", "--format=%H%x1f%an%x1f%aI%x1f%s"}
	if n > 0 {
		args = append(args, fmt.Sprintf("-n%d", n))
	}
	args = append(args, "--", path)
	out, err := c.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, "\x1f")
		if len(parts) != 4 {
			continue
		}
		when, err := time.Parse(time.RFC3339, parts[2])
		if err != nil {
			return nil, fmt.Errorf("git log: bad date %q: %w", parts[2], err)
		}
		commits = append(commits, Commit{Hash: parts[0], Author: parts[1], When: when, Subject: parts[3]})
	}
	return commits, nil
}
