package gitsync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/junki-kanda/AutGuardRails/pkg/config"
)

func TestAuthMethodNone(t *testing.T) {
	for _, typ := range []string{"", "none"} {
		method, err := authMethod(&config.GitAuthConfig{Type: typ})
		if err != nil {
			t.Errorf("authMethod(type=%q) failed: %v", typ, err)
		}
		if method != nil {
			t.Errorf("authMethod(type=%q) = %v, want nil for anonymous access", typ, method)
		}
	}
}

func TestAuthMethodToken(t *testing.T) {
	method, err := authMethod(&config.GitAuthConfig{Type: "token", Token: "ghp_testtoken123"})
	if err != nil {
		t.Fatalf("authMethod() failed: %v", err)
	}

	basic, ok := method.(*githttp.BasicAuth)
	if !ok {
		t.Fatalf("authMethod() returned %T, want *githttp.BasicAuth", method)
	}
	if basic.Username != "git" {
		t.Errorf("Username = %q, want %q", basic.Username, "git")
	}
	if basic.Password != "ghp_testtoken123" {
		t.Errorf("Password = %q, want the token", basic.Password)
	}
}

func TestAuthMethodTokenMissing(t *testing.T) {
	_, err := authMethod(&config.GitAuthConfig{Type: "token"})
	if err == nil {
		t.Fatal("authMethod() with empty token should fail")
	}
}

func TestAuthMethodUnknownType(t *testing.T) {
	_, err := authMethod(&config.GitAuthConfig{Type: "kerberos"})
	if err == nil {
		t.Fatal("authMethod() with unknown type should fail")
	}
	if !strings.Contains(err.Error(), "unknown auth type") {
		t.Errorf("error = %q, want it to name the unknown auth type", err)
	}
}

func TestAuthMethodSSHMissingPath(t *testing.T) {
	_, err := authMethod(&config.GitAuthConfig{Type: "ssh"})
	if err == nil {
		t.Fatal("authMethod() without ssh_key_path should fail")
	}
	if !strings.Contains(err.Error(), "ssh_key_path") {
		t.Errorf("error = %q, want it to name ssh_key_path", err)
	}
}

func TestAuthMethodSSHMissingFile(t *testing.T) {
	_, err := authMethod(&config.GitAuthConfig{
		Type:       "ssh",
		SSHKeyPath: filepath.Join(t.TempDir(), "no-such-key"),
	})
	if err == nil {
		t.Fatal("authMethod() with a missing key file should fail")
	}
}

func TestSSHKeyAuthPermissions(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		perm     os.FileMode
		wantOpen bool // expect the "too open" refusal
	}{
		{name: "0600", perm: 0o600, wantOpen: false},
		{name: "0400", perm: 0o400, wantOpen: false},
		{name: "0644", perm: 0o644, wantOpen: true},
		{name: "0660", perm: 0o660, wantOpen: true},
		{name: "0666", perm: 0o666, wantOpen: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyPath := filepath.Join(dir, "key_"+tt.name)
			if err := os.WriteFile(keyPath, []byte("not a real key"), tt.perm); err != nil {
				t.Fatal(err)
			}

			_, err := sshKeyAuth(keyPath, "")
			if err == nil {
				// The 0600/0400 cases still fail: the content is not a
				// parseable private key.
				t.Fatal("sshKeyAuth() with a dummy key should fail")
			}

			gotOpen := strings.Contains(err.Error(), "too open")
			if gotOpen != tt.wantOpen {
				t.Errorf("error = %q, want too-open refusal = %v", err, tt.wantOpen)
			}
		})
	}
}
