package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/utilitywarehouse/git-cache/repocache"
)

func TestValidateConfigKeys(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			"valid",
			`
root: /var/cache/git-cache
stale_after: 1h
idle_ttl: 168h
size_budget_bytes: 1073741824
retries: 3
retry_backoff: 1s
auth:
  username: bob
  password: secret
`,
			false,
		},
		{
			"valid_github_app",
			`
root: /var/cache/git-cache
auth:
  github_app_id: "1234"
  github_app_installation_id: "5678"
  github_app_private_key_path: /etc/git-secret/key.pem
`,
			false,
		},
		{
			"unexpected_top_level_key",
			`
root: /var/cache/git-cache
staleafter: 1h
`,
			true,
		},
		{
			"unexpected_auth_key",
			`
root: /var/cache/git-cache
auth:
  token: secret
`,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigKeys([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfigKeys() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
root: /var/cache/git-cache
stale_after: 1h
retries: 1
auth:
  password: secret
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("unable to write config file: %v", err)
	}

	got, err := parseConfigFile(path)
	if err != nil {
		t.Fatalf("parseConfigFile() error = %v", err)
	}

	want := &repocache.Config{
		Root:       "/var/cache/git-cache",
		StaleAfter: time.Hour,
		Retries:    1,
	}
	want.Auth.Password = "secret"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseConfigFile() mismatch (-want +got):\n%s", diff)
	}
}
