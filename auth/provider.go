package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	cryptossh "golang.org/x/crypto/ssh"

	"github.com/utilitywarehouse/git-cache/internal/lock"
)

// Provider resolves go-git auth methods for a configured remote host.
// GitHub app installation tokens are cached and refreshed before expiry.
type Provider struct {
	cfg Config
	log *slog.Logger

	mu                      lock.Mutex
	githubAppToken          string
	githubAppTokenExpiresAt time.Time
}

func NewProvider(cfg Config, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{cfg: cfg, log: log}
}

// HTTPS returns the auth method for https remotes of the given repo.
// nil method means anonymous access.
func (p *Provider) HTTPS(ctx context.Context, host, repoName string) (transport.AuthMethod, error) {
	switch {
	// if username & password is set use that
	case p.cfg.Username != "" && p.cfg.Password != "":
		return &githttp.BasicAuth{Username: p.cfg.Username, Password: p.cfg.Password}, nil

	// if only password (token) is set use that
	case p.cfg.Password != "":
		// username is required
		return &githttp.BasicAuth{Username: "-", Password: p.cfg.Password}, nil

	// if github app config is set use that token
	case p.cfg.GithubAppInstallationID != "" && host == "github.com":
		token, err := p.githubToken(ctx, repoName)
		if err != nil {
			return nil, fmt.Errorf("unable to get github app token err:%w", err)
		}
		return &githttp.BasicAuth{Username: "-", Password: token}, nil
	}

	return nil, nil
}

// SSH returns the auth method for ssh remotes. nil method means no ssh
// key is configured, in which case ssh candidates cannot be attempted.
func (p *Provider) SSH(user string) (transport.AuthMethod, error) {
	if p.cfg.SSHKeyPath == "" {
		return nil, nil
	}

	keys, err := gitssh.NewPublicKeysFromFile(user, p.cfg.SSHKeyPath, "")
	if err != nil {
		return nil, fmt.Errorf("unable to load ssh key err:%w", err)
	}

	if p.cfg.SSHKnownHostsPath != "" {
		cb, err := gitssh.NewKnownHostsCallback(p.cfg.SSHKnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("unable to load known hosts err:%w", err)
		}
		keys.HostKeyCallback = cb
	} else {
		keys.HostKeyCallback = cryptossh.InsecureIgnoreHostKey()
	}

	return keys, nil
}

func (p *Provider) githubToken(ctx context.Context, repoName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// return token if current token is valid for next 10 min
	if p.githubAppTokenExpiresAt.After(time.Now().UTC().Add(10 * time.Minute)) {
		return p.githubAppToken, nil
	}

	// github matches repo name without `.git` for permission for token req
	permissions := GithubAppTokenReqPermissions{
		Repositories: []string{repoName},
		Permissions:  map[string]string{"contents": "read"},
	}

	token, err := GithubAppInstallationToken(ctx,
		p.cfg.GithubAppID, p.cfg.GithubAppInstallationID, p.cfg.GithubAppPrivateKeyPath,
		permissions)
	if err != nil {
		return "", err
	}

	p.githubAppToken = token.Token
	p.githubAppTokenExpiresAt = token.ExpiresAt

	p.log.Debug("new github app access token created")

	return p.githubAppToken, nil
}
