package gitsync

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/junki-kanda/AutGuardRails/pkg/config"
)

// authMethod resolves the transport credentials for the configured scheme.
// It is called per operation, not once at construction, so a rotated key
// file or token is picked up on the next pull. A nil method means anonymous
// access.
func authMethod(cfg *config.GitAuthConfig) (transport.AuthMethod, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil

	case "token":
		if cfg.Token == "" {
			return nil, fmt.Errorf("token auth requires a non-empty token")
		}
		// The username is ignored for token auth; "git" is conventional.
		return &githttp.BasicAuth{Username: "git", Password: cfg.Token}, nil

	case "ssh":
		return sshKeyAuth(cfg.SSHKeyPath, cfg.SSHKeyPassphrase)

	default:
		return nil, fmt.Errorf("unknown auth type %q: must be 'none', 'token', or 'ssh'", cfg.Type)
	}
}

// sshKeyAuth loads an SSH private key, refusing key files readable by group
// or world.
func sshKeyAuth(keyPath, passphrase string) (transport.AuthMethod, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("ssh auth requires ssh_key_path")
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading ssh key: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return nil, fmt.Errorf("ssh key %s permissions %04o too open, want 0600", keyPath, mode)
	}

	keys, err := gitssh.NewPublicKeysFromFile("git", keyPath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("loading ssh key %s: %w", keyPath, err)
	}
	return keys, nil
}
