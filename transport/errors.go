package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
)

// Kind classifies a failed remote operation. the kind decides whether
// the caller retries, tries another remote url or gives up.
type Kind int

const (
	// KindNetwork covers transient failures, timeouts, refused
	// connections and anything else not positively identified.
	// network failures are the only retryable kind.
	KindNetwork Kind = iota
	// KindAuth covers rejected or missing credentials.
	KindAuth
	// KindRefNotFound covers missing repositories, empty remotes and
	// missing refs.
	KindRefNotFound
	// KindProtocol covers malformed urls and invalid remote responses.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRefNotFound:
		return "ref-not-found"
	case KindProtocol:
		return "protocol"
	default:
		return "network"
	}
}

// Error is a classified remote operation failure. URL is always in
// redacted form and safe to log.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote operation failed kind:%s url:%s err:%v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind returns the classification of err and whether err is a
// transport error at all.
func ErrorKind(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether err is a transport error worth retrying
func IsRetryable(err error) bool {
	k, ok := ErrorKind(err)
	return ok && k == KindNetwork
}

// classify maps go-git errors to a transport error kind.
func classify(rawURL string, err error) *Error {
	te := &Error{URL: Redact(rawURL), Err: err}

	switch {
	case errors.Is(err, gittransport.ErrAuthenticationRequired),
		errors.Is(err, gittransport.ErrAuthorizationFailed):
		te.Kind = KindAuth

	case errors.Is(err, gittransport.ErrRepositoryNotFound),
		errors.Is(err, gittransport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, gogit.ErrBranchNotFound):
		te.Kind = KindRefNotFound

	case errors.Is(err, gittransport.ErrInvalidAuthMethod),
		errors.Is(err, gogit.ErrMissingURL):
		te.Kind = KindProtocol

	default:
		te.Kind = KindNetwork
	}

	return te
}

// Redact strips userinfo from the given url so it can be logged or
// embedded in errors. non-url remotes (scp form, local paths) carry no
// credentials and are returned as is.
func Redact(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}
