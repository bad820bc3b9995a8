// Package snapshot archives rendered trees.
//
// A snapshot is the markup of a dom subtree at one instant, as produced by
// dom.Markup. Snapshots are written to a Store under a key derived from a
// name and the capture time:
//
//	store, _ := snapshot.NewDiskStore("snapshots", 0)
//	key, err := snapshot.Save(ctx, store, "demo", root)
//
// DiskStore keeps one file per snapshot. S3Store writes objects to an S3
// bucket (or any S3-compatible service) through aws-sdk-go-v2.
package snapshot
