package gitsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/junki-kanda/AutGuardRails/pkg/config"
)

// Commit describes the checked-out policy commit.
type Commit struct {
	SHA     string    `json:"sha"`
	Author  string    `json:"author"`
	Email   string    `json:"email"`
	When    time.Time `json:"when"`
	Message string    `json:"message"`
}

// SyncResult reports what one sync pass pulled.
type SyncResult struct {
	// From and To are the HEAD commits before and after the pull. Equal
	// when the remote had nothing new.
	From string
	To   string

	// ChangedFiles are the repo-relative paths touched between From and To.
	ChangedFiles []string

	// PolicyChanged reports whether any changed file is a policy file
	// under the configured path. Only these pulls warrant a reload.
	PolicyChanged bool
}

// SyncStatus is a snapshot of sync progress, suitable for readiness checks
// and status logging.
type SyncStatus struct {
	CommitSHA string    `json:"commit_sha"`
	LastSync  time.Time `json:"last_sync"`
	Syncs     int64     `json:"syncs"`
	Failures  int64     `json:"failures"`
	Reloads   int64     `json:"reloads"`
	LastError string    `json:"last_error,omitempty"`
}

// Syncer keeps a local clone of the policy repository current and reports
// when pulled commits touch policy files.
type Syncer struct {
	cfg    *config.GitPoliciesConfig
	logger *slog.Logger

	// mu guards repo and status
	mu     sync.Mutex
	repo   *gogit.Repository
	status SyncStatus

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncer creates a syncer for the given Git policy source. Unusable
// authentication config fails here rather than on the first pull.
func NewSyncer(cfg *config.GitPoliciesConfig) (*Syncer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("git policy config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL is required")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch is required")
	}
	if _, err := authMethod(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("git auth: %w", err)
	}

	return &Syncer{
		cfg:    cfg,
		logger: slog.With("component", "policy-gitsync"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Init makes the cache directory a usable clone: it reuses an existing clone
// when one is present, otherwise clones the configured repository and branch.
// A cached clone on the wrong branch is checked out to the configured one.
func (s *Syncer) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(filepath.Join(s.cfg.CacheDir, ".git")); err == nil {
		if err := s.openCached(); err != nil {
			return err
		}
	} else {
		if err := s.clone(ctx); err != nil {
			return err
		}
	}

	hash, err := s.headHash()
	if err != nil {
		return err
	}
	s.status.CommitSHA = hash.String()

	s.logger.Info("policy repository ready",
		"repository", s.cfg.Repository,
		"branch", s.cfg.Branch,
		"commit", short(s.status.CommitSHA),
		"cache_dir", s.cfg.CacheDir)
	return nil
}

// openCached opens the existing clone in the cache directory and moves it to
// the configured branch if HEAD is elsewhere. A cache this cannot fix has to
// be deleted by the operator; the error says so.
func (s *Syncer) openCached() error {
	repo, err := gogit.PlainOpen(s.cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("opening cached clone in %s (delete it to re-clone): %w", s.cfg.CacheDir, err)
	}

	branch := plumbing.NewBranchReferenceName(s.cfg.Branch)
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("reading HEAD of cached clone in %s (delete it to re-clone): %w", s.cfg.CacheDir, err)
	}
	if head.Name() != branch {
		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("opening worktree: %w", err)
		}
		if err := wt.Checkout(&gogit.CheckoutOptions{Branch: branch}); err != nil {
			return fmt.Errorf("checking out %s in cached clone (delete %s to re-clone): %w", s.cfg.Branch, s.cfg.CacheDir, err)
		}
	}

	s.repo = repo
	return nil
}

// clone performs the initial clone of the configured branch.
func (s *Syncer) clone(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	auth, err := authMethod(&s.cfg.Auth)
	if err != nil {
		return err
	}

	repo, err := gogit.PlainCloneContext(ctx, s.cfg.CacheDir, false, &gogit.CloneOptions{
		URL:           s.cfg.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		return fmt.Errorf("cloning %s: %w", s.cfg.Repository, err)
	}

	s.repo = repo
	return nil
}

// Sync runs one pull pass and reports what moved. It never rewinds: a pull
// that fails leaves the working tree on the last good commit.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, fmt.Errorf("syncer not initialized, call Init first")
	}

	s.status.Syncs++

	from, err := s.headHash()
	if err != nil {
		return s.fail(err)
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return s.fail(fmt.Errorf("opening worktree: %w", err))
	}

	auth, err := authMethod(&s.cfg.Auth)
	if err != nil {
		return s.fail(err)
	}

	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return s.fail(fmt.Errorf("pulling %s: %w", s.cfg.Repository, err))
	}

	to, err := s.headHash()
	if err != nil {
		return s.fail(err)
	}

	result := &SyncResult{From: from.String(), To: to.String()}
	if from != to {
		files, err := s.changedFiles(from, to)
		if err != nil {
			return s.fail(err)
		}
		result.ChangedFiles = files
		result.PolicyChanged = s.policyFileChanged(files)
	}

	s.status.CommitSHA = to.String()
	s.status.LastSync = time.Now()
	s.status.LastError = ""
	return result, nil
}

// fail records a sync failure in the status. The caller holds mu.
func (s *Syncer) fail(err error) (*SyncResult, error) {
	s.status.Failures++
	s.status.LastError = err.Error()
	return nil, err
}

// headHash returns the current HEAD commit hash. The caller holds mu.
func (s *Syncer) headHash() (plumbing.Hash, error) {
	ref, err := s.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("reading HEAD: %w", err)
	}
	return ref.Hash(), nil
}

// changedFiles diffs the trees of two commits and returns the touched paths,
// using the pre-change path for deletions. The caller holds mu.
func (s *Syncer) changedFiles(from, to plumbing.Hash) ([]string, error) {
	fromCommit, err := s.repo.CommitObject(from)
	if err != nil {
		return nil, fmt.Errorf("resolving commit %s: %w", short(from.String()), err)
	}
	toCommit, err := s.repo.CommitObject(to)
	if err != nil {
		return nil, fmt.Errorf("resolving commit %s: %w", short(to.String()), err)
	}

	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("diffing trees: %w", err)
	}

	var files []string
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		files = append(files, name)
	}
	return files, nil
}

// policyFileChanged reports whether any changed file is a non-hidden
// .yaml/.yml file under the configured repo path.
func (s *Syncer) policyFileChanged(files []string) bool {
	prefix := strings.Trim(s.cfg.Path, "/")
	if prefix != "" {
		prefix += "/"
	}

	for _, file := range files {
		if !strings.HasPrefix(file, prefix) {
			continue
		}
		if strings.HasPrefix(path.Base(file), ".") {
			continue
		}
		switch strings.ToLower(path.Ext(file)) {
		case ".yaml", ".yml":
			return true
		}
	}
	return false
}

// Run blocks, pulling the repository every poll interval and invoking
// onChange after each pull that moved a policy file, until the context is
// cancelled or Stop is called. Pull and reload failures are logged and
// polling continues with the last good policy set.
func (s *Syncer) Run(ctx context.Context, onChange func() error) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("syncer already running")
	}
	s.running = true
	s.runMu.Unlock()

	defer func() {
		s.runMu.Lock()
		s.running = false
		s.runMu.Unlock()
		close(s.doneCh)
	}()

	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = config.DefaultGitPollInterval
	}

	s.logger.Info("policy repo sync started",
		"repository", s.cfg.Repository,
		"branch", s.cfg.Branch,
		"poll_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("policy repo sync stopped (context cancelled)")
			return nil

		case <-s.stopCh:
			s.logger.Info("policy repo sync stopped")
			return nil

		case <-ticker.C:
			s.poll(ctx, interval, onChange)
		}
	}
}

// poll runs one sync pass with a deadline of one interval, so a hung pull
// cannot stack up behind the ticker.
func (s *Syncer) poll(ctx context.Context, interval time.Duration, onChange func() error) {
	syncCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	result, err := s.Sync(syncCtx)
	if err != nil {
		s.logger.Error("policy repo pull failed", "error", err)
		return
	}

	if !result.PolicyChanged {
		if result.From != result.To {
			s.logger.Debug("pulled commits touch no policy files",
				"from", short(result.From), "to", short(result.To))
		}
		return
	}

	s.logger.Info("policy files changed",
		"from", short(result.From),
		"to", short(result.To),
		"changed_files", len(result.ChangedFiles))

	if err := onChange(); err != nil {
		s.logger.Error("policy reload failed", "error", err)
		return
	}

	s.mu.Lock()
	s.status.Reloads++
	s.mu.Unlock()
}

// Stop stops the poll loop and waits for Run to return. Stopping a syncer
// that is not running is a no-op.
func (s *Syncer) Stop() error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return nil
	}
	s.runMu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	return nil
}

// PolicyDir returns the policy directory inside the cached clone. This is
// the directory the store loads from in git mode.
func (s *Syncer) PolicyDir() string {
	return filepath.Join(s.cfg.CacheDir, filepath.FromSlash(s.cfg.Path))
}

// Head returns the checked-out commit.
func (s *Syncer) Head() (*Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, fmt.Errorf("syncer not initialized, call Init first")
	}

	hash, err := s.headHash()
	if err != nil {
		return nil, err
	}
	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("resolving commit %s: %w", short(hash.String()), err)
	}
	return newCommit(commit), nil
}

// History returns up to limit commits reachable from HEAD, newest first.
func (s *Syncer) History(limit int) ([]*Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, fmt.Errorf("syncer not initialized, call Init first")
	}

	hash, err := s.headHash()
	if err != nil {
		return nil, err
	}
	iter, err := s.repo.Log(&gogit.LogOptions{From: hash})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	var commits []*Commit
	for limit <= 0 || len(commits) < limit {
		commit, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walking log: %w", err)
		}
		commits = append(commits, newCommit(commit))
	}
	return commits, nil
}

func newCommit(c *object.Commit) *Commit {
	return &Commit{
		SHA:     c.Hash.String(),
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		When:    c.Author.When,
		Message: strings.TrimSpace(c.Message),
	}
}

// Status returns a snapshot of sync progress.
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// short truncates a commit sha for log fields.
func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
