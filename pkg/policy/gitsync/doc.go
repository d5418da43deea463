// Package gitsync keeps a local clone of a Git-hosted policy repository in
// step with its remote, so guardrail policies can be managed through pull
// requests instead of files on the controller host.
//
// A Syncer clones the configured repository and branch into the cache
// directory (or reuses an existing clone), then polls the remote on a fixed
// interval. After each pull it diffs the commit range and reports whether any
// .yaml/.yml files under the configured path moved; only then does Run invoke
// the reload callback. Pull and reload failures are logged and polling
// continues, so the controller keeps evaluating against the last good policy
// set.
//
// Authentication supports HTTPS tokens, SSH private keys (permission-checked,
// optional passphrase), and anonymous access for public repositories.
//
// Usage:
//
//	syncer, err := gitsync.NewSyncer(&cfg.Policies.Git)
//	if err != nil {
//	    return err
//	}
//	if err := syncer.Init(ctx); err != nil {
//	    return err
//	}
//	if err := store.Reload(syncer.PolicyDir()); err != nil {
//	    return err
//	}
//	go syncer.Run(ctx, func() error {
//	    return store.Reload(syncer.PolicyDir())
//	})
package gitsync
