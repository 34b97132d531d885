// Package patchgate is the public entry point of PatchGate: it takes a batch
// of file changes proposed by an AI agent and applies only what policy
// allows, with a snapshot for rollback and an audit trail.
//
// Basic usage:
//
//	in, err := model.ParsePatchSet(data)
//	if err != nil {
//		return err
//	}
//	res, err := patchgate.Run(ctx, *in, patchgate.Options{Workdir: "/path/to/project"})
//	if err != nil {
//		return err
//	}
//	fmt.Println(res.Applied, res.Blocked)
//
// Every run goes through the same steps:
//
//  1. Policy: each patch is checked for traversal, absolute paths and the
//     blocklist. Blocked patches are reported, never applied.
//  2. Preview: an optional callback sees diffs of the allowed patches and
//     may cancel the run.
//  3. Apply: a snapshot of every touched file is saved, then patches are
//     written atomically, one by one.
//  4. Audit: one line is appended to .patchgate/audit.log.
//
// A run can be undone with Rollback and the snapshot path from its result.
package patchgate
