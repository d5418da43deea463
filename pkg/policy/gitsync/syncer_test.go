package gitsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/junki-kanda/AutGuardRails/pkg/config"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

const policyYAMLTemplate = `policy_id: %s
mode: simulate
ttl_minutes: 60
match:
  sources: [budget_threshold]
  account_ids: ["123456789012"]
  min_amount_usd: 500
scope:
  principals:
    - type: iam_role
      arn: arn:aws:iam::123456789012:role/ci-deployer
actions:
  - type: attach_deny_policy
    deny: [ec2:RunInstances]
notify:
  slack_channel: "#cost-alerts"
`

func policyYAML(id string) string {
	return fmt.Sprintf(policyYAMLTemplate, id)
}

// initSourceRepo creates a local source repository with one committed policy
// under policies/. It stands in for the remote.
func initSourceRepo(t *testing.T) (string, *gogit.Repository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	commitFile(t, repo, dir, "policies/ec2-spike.yaml", policyYAML("ec2-spike"), "add ec2-spike guardrail")
	return dir, repo
}

func commitFile(t *testing.T, repo *gogit.Repository, dir, name, content, msg string) string {
	t.Helper()

	full := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("Add %s: %v", name, err)
	}
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Policy Bot", Email: "bot@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return hash.String()
}

// PlainInit puts HEAD on master, so the tests track that branch.
func testSyncConfig(t *testing.T, source string) *config.GitPoliciesConfig {
	t.Helper()
	return &config.GitPoliciesConfig{
		Enabled:      true,
		Repository:   source,
		Branch:       "master",
		Path:         "policies",
		CacheDir:     t.TempDir(),
		PollInterval: 50 * time.Millisecond,
		Auth:         config.GitAuthConfig{Type: "none"},
	}
}

func TestNewSyncer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.GitPoliciesConfig
		wantErr bool
	}{
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name:    "missing repository",
			cfg:     &config.GitPoliciesConfig{Branch: "main"},
			wantErr: true,
		},
		{
			name:    "missing branch",
			cfg:     &config.GitPoliciesConfig{Repository: "https://example.com/policies.git"},
			wantErr: true,
		},
		{
			name: "token auth without token",
			cfg: &config.GitPoliciesConfig{
				Repository: "https://example.com/policies.git",
				Branch:     "main",
				Auth:       config.GitAuthConfig{Type: "token"},
			},
			wantErr: true,
		},
		{
			name: "unknown auth type",
			cfg: &config.GitPoliciesConfig{
				Repository: "https://example.com/policies.git",
				Branch:     "main",
				Auth:       config.GitAuthConfig{Type: "kerberos"},
			},
			wantErr: true,
		},
		{
			name: "valid anonymous",
			cfg: &config.GitPoliciesConfig{
				Repository: "https://example.com/policies.git",
				Branch:     "main",
			},
			wantErr: false,
		},
		{
			name: "valid token",
			cfg: &config.GitPoliciesConfig{
				Repository: "https://example.com/policies.git",
				Branch:     "main",
				Auth:       config.GitAuthConfig{Type: "token", Token: "ghp_testtoken123"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSyncer(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSyncer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s == nil {
				t.Fatal("NewSyncer() returned nil syncer")
			}
		})
	}
}

func TestSyncerInitClones(t *testing.T) {
	source, _ := initSourceRepo(t)
	cfg := testSyncConfig(t, source)

	s, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	cloned := filepath.Join(cfg.CacheDir, "policies", "ec2-spike.yaml")
	if _, err := os.Stat(cloned); err != nil {
		t.Errorf("cloned policy file missing: %v", err)
	}

	if got, want := s.PolicyDir(), filepath.Join(cfg.CacheDir, "policies"); got != want {
		t.Errorf("PolicyDir() = %q, want %q", got, want)
	}

	head, err := s.Head()
	if err != nil {
		t.Fatalf("Head() failed: %v", err)
	}
	if len(head.SHA) != 40 {
		t.Errorf("Head().SHA = %q, want a 40-char sha", head.SHA)
	}
	if head.Author != "Policy Bot" {
		t.Errorf("Head().Author = %q, want %q", head.Author, "Policy Bot")
	}
	if head.Message != "add ec2-spike guardrail" {
		t.Errorf("Head().Message = %q", head.Message)
	}

	if got := s.Status().CommitSHA; got != head.SHA {
		t.Errorf("Status().CommitSHA = %q, want %q", got, head.SHA)
	}
}

func TestSyncerInitReusesClone(t *testing.T) {
	source, _ := initSourceRepo(t)
	cfg := testSyncConfig(t, source)

	first, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := first.Init(context.Background()); err != nil {
		t.Fatalf("first Init() failed: %v", err)
	}
	firstHead, err := first.Head()
	if err != nil {
		t.Fatalf("Head() failed: %v", err)
	}

	second, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := second.Init(context.Background()); err != nil {
		t.Fatalf("second Init() over an existing clone failed: %v", err)
	}
	secondHead, err := second.Head()
	if err != nil {
		t.Fatalf("Head() failed: %v", err)
	}

	if firstHead.SHA != secondHead.SHA {
		t.Errorf("reused clone HEAD = %s, want %s", secondHead.SHA, firstHead.SHA)
	}
}

func TestSyncerInitMissingRemote(t *testing.T) {
	cfg := testSyncConfig(t, filepath.Join(t.TempDir(), "absent"))

	s, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Init(context.Background()); err == nil {
		t.Fatal("Init() against a missing remote should fail")
	}
}

func TestSyncerInitCachedCloneWrongBranch(t *testing.T) {
	source, _ := initSourceRepo(t)
	cfg := testSyncConfig(t, source)

	s, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// A single-branch clone has no local "develop"; reopening the cache on
	// that branch must tell the operator to delete the cache.
	relocated := *cfg
	relocated.Branch = "develop"
	stale, err := NewSyncer(&relocated)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	err = stale.Init(context.Background())
	if err == nil {
		t.Fatal("Init() on a cached clone of another branch should fail")
	}
	if !strings.Contains(err.Error(), "re-clone") {
		t.Errorf("error = %q, want a delete-to-re-clone hint", err)
	}
}

func TestSyncerSyncNoChanges(t *testing.T) {
	source, _ := initSourceRepo(t)
	cfg := testSyncConfig(t, source)

	s, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	result, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if result.From != result.To {
		t.Errorf("From = %s, To = %s, want equal with no remote changes", result.From, result.To)
	}
	if result.PolicyChanged {
		t.Error("PolicyChanged = true, want false with no remote changes")
	}
	if len(result.ChangedFiles) != 0 {
		t.Errorf("ChangedFiles = %v, want none", result.ChangedFiles)
	}

	status := s.Status()
	if status.Syncs != 1 {
		t.Errorf("Status().Syncs = %d, want 1", status.Syncs)
	}
	if status.LastSync.IsZero() {
		t.Error("Status().LastSync not recorded")
	}
}

func TestSyncerSyncPullsPolicyChange(t *testing.T) {
	source, sourceRepo := initSourceRepo(t)
	cfg := testSyncConfig(t, source)

	s, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	pushed := commitFile(t, sourceRepo, source,
		"policies/nat-gateway.yaml", policyYAML("nat-gateway"), "add nat-gateway guardrail")

	result, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if result.From == result.To {
		t.Error("Sync() did not move HEAD")
	}
	if result.To != pushed {
		t.Errorf("To = %s, want pushed commit %s", result.To, pushed)
	}
	if !result.PolicyChanged {
		t.Error("PolicyChanged = false, want true for a pulled policy file")
	}

	found := false
	for _, f := range result.ChangedFiles {
		if f == "policies/nat-gateway.yaml" {
			found = true
		}
	}
	if !found {
		t.Errorf("ChangedFiles = %v, want policies/nat-gateway.yaml", result.ChangedFiles)
	}

	if _, err := os.Stat(filepath.Join(cfg.CacheDir, "policies", "nat-gateway.yaml")); err != nil {
		t.Errorf("pulled policy file missing from working tree: %v", err)
	}
	if got := s.Status().CommitSHA; got != pushed {
		t.Errorf("Status().CommitSHA = %s, want %s", got, pushed)
	}
}

func TestSyncerHistory(t *testing.T) {
	source, sourceRepo := initSourceRepo(t)
	cfg := testSyncConfig(t, source)

	s, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	pushed := commitFile(t, sourceRepo, source,
		"policies/nat-gateway.yaml", policyYAML("nat-gateway"), "add nat-gateway guardrail")
	if _, err := s.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	commits, err := s.History(10)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("History(10) returned %d commits, want 2", len(commits))
	}
	if commits[0].SHA != pushed {
		t.Errorf("newest commit = %s, want %s", commits[0].SHA, pushed)
	}
	if commits[0].Message != "add nat-gateway guardrail" {
		t.Errorf("newest message = %q", commits[0].Message)
	}
	if commits[1].Message != "add ec2-spike guardrail" {
		t.Errorf("oldest message = %q", commits[1].Message)
	}

	limited, err := s.History(1)
	if err != nil {
		t.Fatalf("History(1) failed: %v", err)
	}
	if len(limited) != 1 || limited[0].SHA != pushed {
		t.Errorf("History(1) = %d commits starting %s, want just %s", len(limited), limited[0].SHA, pushed)
	}
}

func TestSyncerHistoryBeforeInit(t *testing.T) {
	source, _ := initSourceRepo(t)

	s, err := NewSyncer(testSyncConfig(t, source))
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if _, err := s.History(5); err == nil {
		t.Fatal("History() before Init() should fail")
	}
}

func TestSyncerSyncIgnoresNonPolicyChanges(t *testing.T) {
	source, sourceRepo := initSourceRepo(t)
	cfg := testSyncConfig(t, source)

	s, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	commitFile(t, sourceRepo, source, "README.md", "# Guardrail policies\n", "describe the repo")
	commitFile(t, sourceRepo, source, "docs/runbook.yaml", "escalation: page-oncall\n", "add runbook")

	result, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if result.From == result.To {
		t.Error("Sync() did not move HEAD")
	}
	if result.PolicyChanged {
		t.Errorf("PolicyChanged = true for %v, want false outside the policy path", result.ChangedFiles)
	}
}

func TestSyncerSyncBeforeInit(t *testing.T) {
	source, _ := initSourceRepo(t)

	s, err := NewSyncer(testSyncConfig(t, source))
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if _, err := s.Sync(context.Background()); err == nil {
		t.Fatal("Sync() before Init() should fail")
	}
}

func TestSyncerRunReloadsOnChange(t *testing.T) {
	source, sourceRepo := initSourceRepo(t)
	cfg := testSyncConfig(t, source)

	s, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	store := policy.NewStore()
	if err := store.Reload(s.PolicyDir()); err != nil {
		t.Fatalf("initial Reload() failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("loaded %d policies, want 1", store.Len())
	}

	reloaded := make(chan struct{}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- s.Run(ctx, func() error {
			err := store.Reload(s.PolicyDir())
			reloaded <- struct{}{}
			return err
		})
	}()

	commitFile(t, sourceRepo, source,
		"policies/nat-gateway.yaml", policyYAML("nat-gateway"), "add nat-gateway guardrail")

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not reload after a policy commit")
	}

	if store.Len() != 2 {
		t.Errorf("store holds %d policies after reload, want 2", store.Len())
	}
	if _, ok := store.Get("nat-gateway"); !ok {
		t.Error("nat-gateway policy not loaded")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := <-runDone; err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if got := s.Status().Reloads; got < 1 {
		t.Errorf("Status().Reloads = %d, want at least 1", got)
	}
}

func TestSyncerRunAlreadyRunning(t *testing.T) {
	source, _ := initSourceRepo(t)
	cfg := testSyncConfig(t, source)

	s, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = s.Run(ctx, func() error { return nil }) }()
	time.Sleep(50 * time.Millisecond)

	if err := s.Run(ctx, func() error { return nil }); err == nil {
		t.Error("second Run() should fail while the first is running")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestSyncerStopWithoutRun(t *testing.T) {
	source, _ := initSourceRepo(t)

	s, err := NewSyncer(testSyncConfig(t, source))
	if err != nil {
		t.Fatalf("NewSyncer() failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() on a never-started syncer = %v, want nil", err)
	}
}

func TestPolicyFileChanged(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		files []string
		want  bool
	}{
		{
			name:  "policy yaml under path",
			path:  "policies",
			files: []string{"policies/ec2-spike.yaml"},
			want:  true,
		},
		{
			name:  "policy yml in subdirectory",
			path:  "policies",
			files: []string{"policies/prod/nat.yml"},
			want:  true,
		},
		{
			name:  "yaml outside path",
			path:  "policies",
			files: []string{"docs/runbook.yaml"},
			want:  false,
		},
		{
			name:  "hidden file skipped",
			path:  "policies",
			files: []string{"policies/.draft.yaml"},
			want:  false,
		},
		{
			name:  "wrong extension",
			path:  "policies",
			files: []string{"policies/README.md", "policies/gen.sh"},
			want:  false,
		},
		{
			name:  "root path matches everything",
			path:  "",
			files: []string{"nat.yml"},
			want:  true,
		},
		{
			name:  "trailing slash in path",
			path:  "policies/",
			files: []string{"policies/ec2-spike.yaml"},
			want:  true,
		},
		{
			name:  "mixed with one policy file",
			path:  "policies",
			files: []string{"README.md", "policies/ec2-spike.yaml", "Makefile"},
			want:  true,
		},
		{
			name:  "no files",
			path:  "policies",
			files: nil,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Syncer{cfg: &config.GitPoliciesConfig{Path: tt.path}}
			if got := s.policyFileChanged(tt.files); got != tt.want {
				t.Errorf("policyFileChanged(%v) = %v, want %v", tt.files, got, tt.want)
			}
		})
	}
}

func TestShort(t *testing.T) {
	if got := short("4f8a21b3c9d0e7f64f8a21b3c9d0e7f64f8a21b3"); got != "4f8a21b3" {
		t.Errorf("short() = %q, want %q", got, "4f8a21b3")
	}
	if got := short("abc"); got != "abc" {
		t.Errorf("short() = %q, want %q", got, "abc")
	}
}
