package repocache

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/utilitywarehouse/git-cache/giturl"
	"github.com/utilitywarehouse/git-cache/transport"
)

// candidateURLs returns the remote urls to try for a reference, in
// order of preference. the https form is primary, the ssh form of the
// same host is the fallback for networks where https egress is blocked.
func candidateURLs(ref *giturl.Reference) []string {
	return []string{ref.HTTPSURL(), ref.SSHURL()}
}

// orchestrator runs one remote operation against an ordered list of
// candidate urls. transient network failures are retried per url with
// exponential backoff and then fall through to the next url. definitive
// failures (auth, missing ref, protocol) surface immediately since no
// other url can recover them.
type orchestrator struct {
	git     gitTransporter
	retries int
	backoff time.Duration
	log     *slog.Logger
}

func (o *orchestrator) run(ctx context.Context, urls []string, op func(ctx context.Context, url string) error) error {
	var attempted []string
	var attempts int
	var lastErr error

	for _, url := range urls {
		attempted = append(attempted, transport.Redact(url))

		tries, err := o.attempt(ctx, url, op)
		attempts += tries
		if err == nil {
			return nil
		}
		lastErr = err

		if !transport.IsRetryable(err) {
			return fmt.Errorf("remote operation failed, tried urls:[%s] err:%w",
				strings.Join(attempted, ", "), err)
		}

		o.log.Info("remote url failed, trying next candidate", "url", transport.Redact(url), "err", err)
	}

	return fmt.Errorf("all remote urls failed after %d attempts, tried urls:[%s] err:%w",
		attempts, strings.Join(attempted, ", "), lastErr)
}

// attempt runs op against one url with retries on network failures. it
// returns the number of times op actually ran alongside its last error.
func (o *orchestrator) attempt(ctx context.Context, url string, op func(ctx context.Context, url string) error) (int, error) {
	delay := o.backoff

	var tries int
	var err error
	for i := 0; i <= o.retries; i++ {
		if i > 0 {
			o.log.Debug("retrying remote operation", "url", transport.Redact(url), "attempt", i, "delay", delay)
			select {
			case <-ctx.Done():
				return tries, ctx.Err()
			case <-time.After(delay + jitter(delay, 0.1)):
			}
			delay *= 2
		}

		tries++
		err = op(ctx, url)
		if err == nil {
			return tries, nil
		}
		if !transport.IsRetryable(err) {
			return tries, err
		}
	}
	return tries, err
}

// jitter returns a time.Duration between duration and maxFactor * duration.
func jitter(duration time.Duration, maxFactor float64) time.Duration {
	return time.Duration(rand.Float64() * maxFactor * float64(duration))
}
