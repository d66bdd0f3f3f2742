// Package giturl parses free-form repository reference strings into
// typed references. supported syntax includes https/ssh/scp git urls,
// provider shorthand ('github:owner/name') and local paths.
// parsing is pure, no network or filesystem access happens here.
package giturl

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidReference is returned when a reference string cannot be
// parsed into a repository reference.
var ErrInvalidReference = errors.New("invalid reference")

var (
	// The repository name can contain
	// ASCII letters, digits, and the characters ., -, and _.

	// user@host.xz:path/to/repo.git
	scpURLRgx = regexp.MustCompile(`^(?P<user>[\w\-\.]+)@(?P<host>([\w\-]+\.?[\w\-]+)+(\:\d+)?):(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)

	// ssh://user@host.xz[:port]/path/to/repo.git
	sshURLRgx = regexp.MustCompile(`^ssh://(?P<user>[\w\-\.]+)@(?P<host>([\w\-]+\.?[\w\-]+)+(\:\d+)??)/(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)

	// https://host.xz[:port]/path/to/repo.git
	httpsURLRgx = regexp.MustCompile(`^https://(?P<host>([\w\-]+\.?[\w\-]+)+(\:\d+)?)/(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)

	// provider:owner/name (github:acme/widgets)
	shorthandRgx = regexp.MustCompile(`^(?P<provider>[a-z]+):(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)

	// file:///path/to/repo.git
	fileURLRgx = regexp.MustCompile(`^file://(?P<path>/.+)$`)

	// hosts for known provider shorthands
	providerHosts = map[string]string{
		"github":    "github.com",
		"gitlab":    "gitlab.com",
		"bitbucket": "bitbucket.org",
	}

	// hosts mapped back to their provider shorthand
	hostProviders = map[string]string{
		"github.com":    "github",
		"gitlab.com":    "gitlab",
		"bitbucket.org": "bitbucket",
	}
)

// Reference represents a parsed repository reference.
// a reference is either remote (provider/host/owner/name) or local
// (absolute path). remote references never carry a requested git ref,
// that is supplied separately by the caller of the cache manager.
type Reference struct {
	Provider string // provider shorthand if host is known, host name otherwise
	Host     string // host or host:port, empty for local references
	Owner    string // path to the repo (org, user or nested groups)
	Name     string // repository name without .git suffix

	// LocalPath is the absolute path of a local repository.
	// when set all remote fields are empty.
	LocalPath string
}

// IsLocal returns whether the reference points to a local repository path
func (r *Reference) IsLocal() bool {
	return r.LocalPath != ""
}

// HTTPSURL returns the canonical https clone url of a remote reference
func (r *Reference) HTTPSURL() string {
	return fmt.Sprintf("https://%s/%s/%s.git", r.Host, r.Owner, r.Name)
}

// SSHURL returns the ssh clone url of a remote reference
func (r *Reference) SSHURL() string {
	return fmt.Sprintf("ssh://git@%s/%s/%s.git", r.Host, r.Owner, r.Name)
}

// Equals returns whether or not the two references point at the same
// repository. the requested ref and url scheme used to write the
// reference do not matter, only the repository identity does.
func (r *Reference) Equals(o *Reference) bool {
	if r.IsLocal() || o.IsLocal() {
		return r.LocalPath == o.LocalPath
	}
	return r.Host == o.Host && r.Owner == o.Owner && r.Name == o.Name
}

// NormaliseReference will return the case-folded form of a reference
// string used for remote shape matching and comparison
func NormaliseReference(raw string) string {
	nRef := strings.ToLower(strings.TrimSpace(raw))
	nRef = strings.TrimRight(nRef, "/")
	return nRef
}

// ParseReference parses a raw reference string into a Reference.
// valid references are...
//   - https://host.xz[:port]/owner/name.git
//   - ssh://user@host.xz[:port]/owner/name.git
//   - user@host.xz:owner/name.git
//   - provider:owner/name (github, gitlab or bitbucket)
//   - file:///abs/path or /abs/path
//
// relative paths are rejected, normalisation to absolute paths is the
// caller's responsibility. any reference containing a parent-directory
// traversal segment is rejected before shape matching.
func ParseReference(raw string) (*Reference, error) {
	// case folding applies to remote references only, hosts and provider
	// repo paths are case insensitive. local paths keep their case, they
	// name real dirs on possibly case-sensitive filesystems.
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	nRef := NormaliseReference(raw)

	if nRef == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}

	if hasTraversal(nRef) {
		return nil, fmt.Errorf("%w: reference '%s' contains parent dir traversal", ErrInvalidReference, raw)
	}

	ref := &Reference{}
	var sections []string

	switch {
	case scpURLRgx.MatchString(nRef):
		sections = scpURLRgx.FindStringSubmatch(nRef)
		ref.Host = sections[scpURLRgx.SubexpIndex("host")]
		ref.Owner = sections[scpURLRgx.SubexpIndex("path")]
		ref.Name = sections[scpURLRgx.SubexpIndex("repo")]
	case sshURLRgx.MatchString(nRef):
		sections = sshURLRgx.FindStringSubmatch(nRef)
		ref.Host = sections[sshURLRgx.SubexpIndex("host")]
		ref.Owner = sections[sshURLRgx.SubexpIndex("path")]
		ref.Name = sections[sshURLRgx.SubexpIndex("repo")]
	case httpsURLRgx.MatchString(nRef):
		sections = httpsURLRgx.FindStringSubmatch(nRef)
		ref.Host = sections[httpsURLRgx.SubexpIndex("host")]
		ref.Owner = sections[httpsURLRgx.SubexpIndex("path")]
		ref.Name = sections[httpsURLRgx.SubexpIndex("repo")]
	case fileURLRgx.MatchString(trimmed):
		sections = fileURLRgx.FindStringSubmatch(trimmed)
		ref.LocalPath = sections[fileURLRgx.SubexpIndex("path")]
		return ref, nil
	case filepath.IsAbs(trimmed):
		ref.LocalPath = trimmed
		return ref, nil
	case shorthandRgx.MatchString(nRef):
		sections = shorthandRgx.FindStringSubmatch(nRef)
		provider := sections[shorthandRgx.SubexpIndex("provider")]
		host, ok := providerHosts[provider]
		if !ok {
			return nil, fmt.Errorf("%w: unknown provider '%s'", ErrInvalidReference, provider)
		}
		ref.Provider = provider
		ref.Host = host
		ref.Owner = sections[shorthandRgx.SubexpIndex("path")]
		ref.Name = sections[shorthandRgx.SubexpIndex("repo")]
	default:
		return nil, fmt.Errorf(
			"%w: '%s' is not a supported reference, supported forms are 'https://host.xz/owner/name.git', 'ssh://user@host.xz/owner/name.git', 'user@host.xz:owner/name.git', 'provider:owner/name' or an absolute path",
			ErrInvalidReference, raw)
	}

	// scp path doesn't have leading "/"
	// also removing trailing "/" for consistency
	ref.Owner = strings.Trim(ref.Owner, "/")
	ref.Name = strings.TrimSuffix(ref.Name, ".git")

	if ref.Owner == "" {
		return nil, fmt.Errorf("%w: repo owner (org) cannot be empty", ErrInvalidReference)
	}
	if ref.Name == "" {
		return nil, fmt.Errorf("%w: repo name cannot be empty", ErrInvalidReference)
	}

	if ref.Provider == "" {
		host := ref.Host
		if i := strings.Index(host, ":"); i != -1 {
			host = host[:i]
		}
		if p, ok := hostProviders[host]; ok {
			ref.Provider = p
		} else {
			ref.Provider = host
		}
	}

	return ref, nil
}

// hasTraversal reports whether any path segment of the reference is a
// parent-directory traversal, in raw or percent-encoded form.
func hasTraversal(ref string) bool {
	// percent-encoded dots ("%2e") decode to "." and can smuggle ".."
	// past the segment check, decode them before splitting
	decoded := strings.ReplaceAll(strings.ToLower(ref), "%2e", ".")

	for _, seg := range strings.FieldsFunc(decoded, func(r rune) bool {
		return r == '/' || r == ':' || r == '\\'
	}) {
		if seg == ".." {
			return true
		}
	}
	return false
}
