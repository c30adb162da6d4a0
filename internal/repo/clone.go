// Package repo acquires remote repositories for scanning.
package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultCloneTimeout = 120 * time.Second

// ErrGitMissing is returned when the git binary cannot be found.
var ErrGitMissing = errors.New("git is not installed or not on PATH")

var remotePrefixes = []string{"http://", "https://", "git@", "ssh://", "git://"}

var remoteHosts = []string{"github.com", "gitlab.com", "bitbucket.org"}

// IsRemote reports whether s looks like a git URL rather than a local path. An
// existing directory is always local, even under a GOPATH-style github.com/... tree.
func IsRemote(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if info, err := os.Stat(s); err == nil && info.IsDir() {
		return false
	}
	for _, p := range remotePrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	for _, h := range remoteHosts {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// Checkout is a shallow clone in a temporary directory.
type Checkout struct {
	Dir string
	URL string
}

// Cleanup removes the clone. It is safe to call more than once.
func (c *Checkout) Cleanup() error {
	if c == nil || c.Dir == "" {
		return nil
	}
	err := os.RemoveAll(c.Dir)
	c.Dir = ""
	return err
}

// Cloner runs git clone --depth 1.
type Cloner struct {
	Git     string        // git binary, "git" when empty
	Timeout time.Duration // whole-clone deadline, 120s when zero
	TempDir string        // parent for clone directories, os.TempDir() when empty
	Logger  *zap.Logger
}

// Clone fetches url (optionally a single branch) into a fresh temporary directory.
func (c *Cloner) Clone(ctx context.Context, rawURL, branch string) (*Checkout, error) {
	rawURL = strings.TrimRight(strings.TrimSpace(rawURL), "/")
	if rawURL == "" {
		return nil, errors.New("repository url is required")
	}
	git := c.Git
	if git == "" {
		git = "git"
	}
	if _, err := exec.LookPath(git); err != nil {
		return nil, ErrGitMissing
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultCloneTimeout
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, err := os.MkdirTemp(c.TempDir, "gitgpt_")
	if err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}
	checkout := &Checkout{Dir: dir, URL: rawURL}

	args := []string{"clone", "--depth", "1"}
	if b := strings.TrimSpace(branch); b != "" {
		args = append(args, "--branch", b)
	}
	args = append(args, "--", rawURL, dir)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, git, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	logger.Info("cloning repository", zap.String("url", SafeURL(rawURL)), zap.String("branch", branch))
	if err := cmd.Run(); err != nil {
		_ = checkout.Cleanup()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("git clone timed out after %s", timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("git clone failed: %s", scrubURL(msg, rawURL))
	}
	logger.Debug("clone complete", zap.String("dir", dir), zap.Duration("elapsed", time.Since(start)))
	return checkout, nil
}

// SafeURL drops any password embedded in a URL.
func SafeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func scrubURL(msg, raw string) string {
	safe := SafeURL(raw)
	if safe == raw {
		return msg
	}
	return strings.ReplaceAll(msg, raw, safe)
}
