package nbslot

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// DefaultTokenTimeout bounds how long a launch waits for the notebook server
// to print its login URL.
const DefaultTokenTimeout = 2 * time.Minute

// TokenPattern matches the login URL the notebook server prints on startup.
var TokenPattern = regexp.MustCompile(`\?token=(\S+)`)

// maxLogLine caps a single scanned line.
const maxLogLine = 1 << 20

// TokenWatcher tails a container's output until it prints an access token.
type TokenWatcher struct {
	runtime Runtime
	timeout time.Duration
	pattern *regexp.Regexp
	logger  *slog.Logger
}

// TokenOption configures a TokenWatcher.
type TokenOption func(*TokenWatcher)

// WithTokenTimeout bounds the wait for a token.
func WithTokenTimeout(d time.Duration) TokenOption {
	return func(w *TokenWatcher) {
		w.timeout = d
	}
}

// WithTokenPattern overrides the token pattern. Its first group is the token.
func WithTokenPattern(re *regexp.Regexp) TokenOption {
	return func(w *TokenWatcher) {
		w.pattern = re
	}
}

// WithTokenLogger sets the watcher's logger.
func WithTokenLogger(l *slog.Logger) TokenOption {
	return func(w *TokenWatcher) {
		w.logger = l
	}
}

// NewTokenWatcher creates a watcher backed by rt.
func NewTokenWatcher(rt Runtime, opts ...TokenOption) *TokenWatcher {
	w := &TokenWatcher{
		runtime: rt,
		timeout: DefaultTokenTimeout,
		pattern: TokenPattern,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Extract returns the token from the first matching line of the container's
// output. It fails with a TokenError when the output ends, the timeout
// elapses or ctx is done first. The container is left running either way.
func (w *TokenWatcher) Extract(ctx context.Context, containerID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	logs, err := w.runtime.FollowLogs(ctx, containerID)
	if err != nil {
		if ctx.Err() != nil {
			return "", &TokenError{ContainerID: containerID, Reason: tokenReason(ctx.Err()), Cause: ctx.Err()}
		}
		return "", fmt.Errorf("follow logs of %s: %w", shortID(containerID), err)
	}
	defer logs.Close()

	type result struct {
		token string
		err   error
	}
	found := make(chan result, 1)

	go func() {
		sc := bufio.NewScanner(logs)
		sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)
		for sc.Scan() {
			if m := w.pattern.FindStringSubmatch(sc.Text()); len(m) > 1 && m[1] != "" {
				found <- result{token: m[1]}
				return
			}
		}
		found <- result{err: sc.Err()}
	}()

	select {
	case r := <-found:
		if r.token != "" {
			w.logger.Debug("access token observed", "container", shortID(containerID))
			return r.token, nil
		}
		reason := "log stream ended"
		if ctx.Err() != nil {
			reason = tokenReason(ctx.Err())
		}
		return "", &TokenError{ContainerID: containerID, Reason: reason, Cause: r.err}
	case <-ctx.Done():
		// The deferred Close unblocks the scanner goroutine.
		return "", &TokenError{ContainerID: containerID, Reason: tokenReason(ctx.Err()), Cause: ctx.Err()}
	}
}
