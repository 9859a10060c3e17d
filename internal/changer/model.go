// Package changer is the Autochanger Controller core: the resource
// model (Changer, Drive, Slot), the per-Changer lock, the drive/slot
// cache, the query engine and the load/unload engine.
//
// A top-level resource-manager struct holds per-resource mutexes and
// a slice of owned sub-resources, each sub-resource carrying its own
// *logrus.Entry.
package changer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/storagedaemon/autochangerd/internal/catalog"
	"github.com/storagedaemon/autochangerd/internal/helper"
	"github.com/storagedaemon/autochangerd/internal/plugin"
	"github.com/storagedaemon/autochangerd/internal/responder"
)

// slotState is the tri-state of Drive.loaded. Kept unexported:
// external code observes it only through LoadedSlot's accessor
// methods, never by comparing a bare sentinel integer — an explicit
// sum type rules out sign-confusion bugs a raw int encoding invites.
type slotState int

const (
	stateUnknown slotState = iota
	stateEmpty
	stateOccupied
)

// LoadedSlot is a Drive's belief about which slot it currently holds.
type LoadedSlot struct {
	state slotState
	slot  int
}

// UnknownSlot is the zero-value tri-state: reality must be queried.
func UnknownSlot() LoadedSlot { return LoadedSlot{state: stateUnknown} }

// EmptySlot reports that the drive holds no volume.
func EmptySlot() LoadedSlot { return LoadedSlot{state: stateEmpty} }

// OccupiedSlot reports that the drive holds the volume from slot n (n>0).
func OccupiedSlot(n int) LoadedSlot { return LoadedSlot{state: stateOccupied, slot: n} }

func (l LoadedSlot) IsUnknown() bool  { return l.state == stateUnknown }
func (l LoadedSlot) IsEmpty() bool    { return l.state == stateEmpty }
func (l LoadedSlot) IsOccupied() bool { return l.state == stateOccupied }

// Slot returns the occupied slot number, or 0 if the drive is not
// known to be occupied.
func (l LoadedSlot) Slot() int {
	if l.state == stateOccupied {
		return l.slot
	}
	return 0
}

// QueryResult maps the tri-state onto the query engine's signed-int
// convention: >0 occupied, 0 empty, -1 unknown.
func (l LoadedSlot) QueryResult() int {
	switch l.state {
	case stateOccupied:
		return l.slot
	case stateEmpty:
		return 0
	default:
		return -1
	}
}

// Drive is one read/write mechanism inside a Changer.
type Drive struct {
	Name           string
	Index          int // drive_index, assigned at init
	AlwaysOpen     bool
	MaxChangerWait time.Duration
	ChangerName    string // device path, may be inherited from the Changer
	ChangerCommand string // helper template, may be inherited from the Changer

	changer *Changer
	Log     *logrus.Entry

	loadedMu sync.Mutex
	loaded   LoadedSlot

	flagMu        sync.Mutex
	volume        *VolumeRef
	swapping      bool
	pendingUnload bool

	// Busy is opaque to this core and consulted read-only; production
	// wiring would source it from the job scheduler's reservation
	// counters. Exposed directly rather than behind a method because
	// nothing here ever mutates it.
	Busy bool
}

// VolumeRef is the optional currently-mounted Volume reference a
// Drive may hold. Its fields beyond Name are opaque to this core.
type VolumeRef struct {
	Name string
}

// GetSlot returns the drive's cached tri-state.
func (d *Drive) GetSlot() LoadedSlot {
	d.loadedMu.Lock()
	defer d.loadedMu.Unlock()
	return d.loaded
}

// SetSlot caches that the drive holds n (n==0 meaning empty).
func (d *Drive) SetSlot(n int) {
	d.loadedMu.Lock()
	defer d.loadedMu.Unlock()
	if n <= 0 {
		d.loaded = EmptySlot()
		return
	}
	d.loaded = OccupiedSlot(n)
}

// ClearSlot resets the drive's cache to Unknown.
func (d *Drive) ClearSlot() {
	d.loadedMu.Lock()
	defer d.loadedMu.Unlock()
	d.loaded = UnknownSlot()
}

// Volume returns the drive's currently-mounted Volume reference, if any.
func (d *Drive) Volume() *VolumeRef {
	d.flagMu.Lock()
	defer d.flagMu.Unlock()
	return d.volume
}

func (d *Drive) setVolume(v *VolumeRef) {
	d.flagMu.Lock()
	defer d.flagMu.Unlock()
	d.volume = v
}

// ClearSwapping clears the drive's swapping flag (set while a mounted
// volume is being evicted for another one).
func (d *Drive) ClearSwapping() {
	d.flagMu.Lock()
	defer d.flagMu.Unlock()
	d.swapping = false
}

// ClearPendingUnload clears the drive's pending-unload flag.
func (d *Drive) ClearPendingUnload() {
	d.flagMu.Lock()
	defer d.flagMu.Unlock()
	d.pendingUnload = false
}

// IsAutochanger reports whether the drive belongs to a configured
// Changer at all.
func (d *Drive) IsAutochanger() bool { return d.changer != nil }

// HasTemplate reports whether the drive has a non-empty helper
// template to invoke, i.e. whether its owning Changer is not virtual.
// The owning Changer's template decides, not the drive's own.
func (d *Drive) HasTemplate() bool {
	return d.changer != nil && !d.changer.Virtual()
}

// Changer is the named robotic unit.
type Changer struct {
	Name           string
	ChangerName    string // device path, %c
	ChangerCommand string // helper template; empty means virtual
	Drives         []*Drive

	lock   *Lock
	plugin plugin.Bus
	inv    *helper.Invoker
	Log    *logrus.Entry
}

// Virtual reports whether this Changer performs no robotic action.
func (c *Changer) Virtual() bool { return c.ChangerCommand == "" }

// New constructs a Changer with its lock, ready to have Drives
// appended by the initializer.
func New(name, changerName, changerCommand string, bus plugin.Bus, inv *helper.Invoker, log *logrus.Entry) *Changer {
	if bus == nil {
		bus = plugin.NoOp{}
	}
	c := &Changer{
		Name:           name,
		ChangerName:    changerName,
		ChangerCommand: changerCommand,
		plugin:         bus,
		inv:            inv,
		Log:            log,
	}
	c.lock = newLock(c)
	return c
}

// DCR (Device Control Record) bundles a job, a drive and catalog info
// for a single operation. It is immutable during the lifetime of a
// call into this core: callers that need to operate against a
// different drive build a retargeted copy rather than mutating the
// cursor in place.
type DCR struct {
	JobName   string
	Drive     *Drive
	Vol       *catalog.VolCatInfo
	Catalog   catalog.Catalog
	Responder responder.Responder
	Writing   bool
}

func (dcr *DCR) withDrive(d *Drive) *DCR {
	cp := *dcr
	cp.Drive = d
	return &cp
}
