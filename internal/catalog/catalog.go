// Package catalog declares the narrow external-collaborator interface
// this core consumes from the generic job/volume catalog. The
// catalog's own internals live elsewhere; this package exists so the
// rest of the module has a concrete type to depend on, in the same
// narrow-interface spirit as a minimal read-only client handle.
package catalog

import "context"

// VolCatInfo is the per-operation catalog record a DCR carries. Slot
// is mutated by the Load/Unload Engine around helper invocations;
// InChanger is cleared when a busy sibling drive blocks eviction of
// the volume's slot; VolumeName is read-only from this core's
// perspective.
type VolCatInfo struct {
	VolumeName string
	Slot       int
	InChanger  bool
}

// Catalog is the subset of the job/volume catalog this core calls
// into directly, consulted when a job is writing and has no slot of
// its own.
type Catalog interface {
	FindNextAppendableVolume(ctx context.Context, jobName string) (VolCatInfo, error)
}
