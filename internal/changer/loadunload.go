package changer

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/storagedaemon/autochangerd/internal/cerr"
	"github.com/storagedaemon/autochangerd/internal/respcode"
	"github.com/storagedaemon/autochangerd/internal/template"
)

// Return codes for AutoloadDevice.
const (
	NoChanger    = 0
	Loaded       = 1
	ChangerError = -1
	LockError    = -2
)

// waitForDevice is the pause between busy-retry attempts in
// unloadOtherDriveLocked; a var so tests can shrink it.
var waitForDevice = func() { time.Sleep(200 * time.Millisecond) }

// AutoloadDevice is the Load/Unload Engine's main entrypoint: it
// ensures the target slot ends up mounted in dcr.Drive, evicting
// whatever currently occupies the drive or the target slot elsewhere
// in the Changer.
func (c *Changer) AutoloadDevice(ctx context.Context, dcr *DCR, writing bool) int {
	d := dcr.Drive

	if !d.IsAutochanger() {
		return NoChanger
	}
	if d.changer.Virtual() {
		return Loaded
	}

	slot := 0
	if dcr.Vol != nil && dcr.Vol.InChanger {
		slot = dcr.Vol.Slot
	}

	if writing && slot <= 0 {
		if dcr.Responder != nil {
			return NoChanger
		}
		if dcr.Catalog != nil {
			vol, err := dcr.Catalog.FindNextAppendableVolume(ctx, dcr.JobName)
			if err == nil && vol.InChanger {
				slot = vol.Slot
			} else {
				slot = 0
			}
		}
	}

	if slot <= 0 || d.ChangerName == "" || d.ChangerCommand == "" {
		c.Log.WithField("drive", d.Name).Warn("autoload_device: no usable slot or missing changer template")
		return NoChanger
	}

	loaded := c.GetLoadedSlot(ctx, dcr, nil)
	if loaded == slot {
		d.SetSlot(slot)
		return Loaded
	}

	held, err := c.Acquire(dcr.JobName)
	if err != nil {
		return LockError
	}
	defer held.Release(dcr.JobName)

	if !c.unloadAutochangerGuarded(ctx, dcr, loaded, held) {
		return ChangerError
	}
	if !c.unloadOtherDriveLocked(ctx, dcr, slot, held) {
		return ChangerError
	}

	savedSlot := 0
	if dcr.Vol != nil {
		savedSlot = dcr.Vol.Slot
		dcr.Vol.Slot = slot
	}

	hadVolume := d.Volume() != nil

	// Closing the device's OS handle is the surrounding device-I/O
	// layer's job; it is expected to have happened by the time the
	// helper runs.
	respond(dcr, respcode.LoadIssued, "loading slot %d into drive %q", slot, d.Name)

	cmd := template.Expand(d.ChangerCommand, template.Values{
		ChangerName: c.ChangerName,
		Operation:   "load",
		Slot:        slot,
		DriveIndex:  d.Index,
	})
	res, runErr := c.inv.RunAndCapture(ctx, cmd, d.MaxChangerWait)

	if dcr.Vol != nil {
		dcr.Vol.Slot = savedSlot
	}

	if runErr != nil || res.ExitCode != 0 {
		d.ClearSlot()
		err := cerr.Helper(fmt.Sprintf("load of slot %d into drive %q failed: %s", slot, d.Name, res.Output))
		c.Log.Error(err.Error())
		respond(dcr, respcode.LoadFailed, "load of slot %d into drive %q failed: %s", slot, d.Name, res.Output)
		return ChangerError
	}

	d.SetSlot(slot)
	if hadVolume {
		d.ClearSwapping()
	}
	respond(dcr, respcode.LoadOK, "slot %d loaded into drive %q", slot, d.Name)
	return Loaded
}

// UnloadAutochanger empties dcr.Drive if it holds a volume. loaded is
// the drive's believed slot; pass a negative value to force a query.
// held is non-nil when the caller already holds the Changer lock.
func (c *Changer) UnloadAutochanger(ctx context.Context, dcr *DCR, loaded int, held *Held) bool {
	ok := true
	_ = c.WithLock(dcr.JobName, held, func(h Held) error {
		ok = c.unloadAutochangerGuarded(ctx, dcr, loaded, h)
		return nil
	})

	// Whatever the outcome, the drive no longer owns a Volume once an
	// unload has been attempted against it.
	dcr.Drive.setVolume(nil)
	return ok
}

// unloadAutochangerGuarded applies the no-op fast paths (already
// empty, virtual changer, missing template) before falling through to
// the helper invocation; the caller must already hold the Changer
// lock represented by held.
func (c *Changer) unloadAutochangerGuarded(ctx context.Context, dcr *DCR, loaded int, held Held) bool {
	d := dcr.Drive

	if loaded == 0 {
		return true
	}
	if loaded < 0 {
		loaded = c.GetLoadedSlot(ctx, dcr, &held)
		if loaded == 0 {
			return true
		}
	}
	if !d.IsAutochanger() || d.changer.Virtual() || d.ChangerName == "" || d.ChangerCommand == "" {
		return true
	}

	return c.unloadAutochangerLocked(ctx, dcr, loaded)
}

// unloadAutochangerLocked runs the %o=unload helper against dcr.Drive
// for the given slot; the caller must already hold the Changer lock.
func (c *Changer) unloadAutochangerLocked(ctx context.Context, dcr *DCR, slot int) bool {
	d := dcr.Drive

	savedSlot := 0
	if dcr.Vol != nil {
		savedSlot = dcr.Vol.Slot
		dcr.Vol.Slot = slot
	}
	defer func() {
		if dcr.Vol != nil {
			dcr.Vol.Slot = savedSlot
		}
	}()

	respond(dcr, respcode.UnloadIssued, "unloading slot %d from drive %q", slot, d.Name)

	cmd := template.Expand(d.ChangerCommand, template.Values{
		ChangerName: c.ChangerName,
		Operation:   "unload",
		Slot:        slot,
		DriveIndex:  d.Index,
	})
	res, err := c.inv.RunAndCapture(ctx, cmd, d.MaxChangerWait)
	if err != nil || res.ExitCode != 0 {
		d.ClearSlot()
		respond(dcr, respcode.BadUnload, "unload of slot %d from drive %q failed: %s", slot, d.Name, res.Output)
		return false
	}
	d.SetSlot(0)
	d.ClearPendingUnload()
	return true
}

// unloadOtherDriveLocked evicts whichever sibling drive currently
// holds slot, if any. The caller must already hold the Changer lock.
func (c *Changer) unloadOtherDriveLocked(ctx context.Context, dcr *DCR, slot int, held Held) bool {
	d := dcr.Drive
	siblings := lo.Filter(c.Drives, func(sib *Drive, _ int) bool { return sib != d })

	for _, sib := range siblings {
		cached := sib.GetSlot()
		if cached.IsUnknown() || cached.IsEmpty() {
			sibDCR := dcr.withDrive(sib)
			c.GetLoadedSlot(ctx, sibDCR, &held)
			cached = sib.GetSlot()
		}
		if !cached.IsOccupied() || cached.Slot() != slot {
			continue
		}

		busy := sib.Busy
		for attempt := 0; attempt < 3 && busy; attempt++ {
			waitForDevice()
			busy = sib.Busy
		}
		if busy {
			err := cerr.Busy(fmt.Sprintf("drive %q busy after retries, cannot evict slot %d", sib.Name, slot))
			c.Log.WithField("drive", sib.Name).Warn(err.Error())
			respond(dcr, respcode.BadUnloadSibling, "drive %q busy, could not evict slot %d", sib.Name, slot)
			if dcr.Vol != nil {
				dcr.Vol.InChanger = false
			}
			return false
		}

		return c.unloadDevLocked(ctx, dcr, sib, held)
	}
	return true
}

// unloadDevLocked unloads other (a sibling of dcr.Drive), retargeting
// a scratch DCR rather than mutating dcr itself. The caller must
// already hold the Changer lock.
func (c *Changer) unloadDevLocked(ctx context.Context, dcr *DCR, other *Drive, held Held) bool {
	otherDCR := dcr.withDrive(other)

	cached := other.GetSlot()
	if cached.IsUnknown() || !other.AlwaysOpen {
		c.GetLoadedSlot(ctx, otherDCR, &held)
		cached = other.GetSlot()
	}
	slot := cached.Slot()

	savedSlot := 0
	if dcr.Vol != nil {
		savedSlot = dcr.Vol.Slot
		dcr.Vol.Slot = slot
	}
	defer func() {
		if dcr.Vol != nil {
			dcr.Vol.Slot = savedSlot
		}
	}()

	cmd := template.Expand(other.ChangerCommand, template.Values{
		ChangerName: c.ChangerName,
		Operation:   "unload",
		Slot:        slot,
		DriveIndex:  other.Index,
	})
	respond(dcr, respcode.UnloadIssued, "unloading slot %d from sibling drive %q", slot, other.Name)

	res, err := c.inv.RunAndCapture(ctx, cmd, other.MaxChangerWait)
	if err != nil || res.ExitCode != 0 {
		other.ClearSlot()
		respond(dcr, respcode.BadUnloadSibling, "unload of slot %d from sibling drive %q failed: %s", slot, other.Name, res.Output)
		return false
	}
	other.SetSlot(0)
	other.ClearPendingUnload()
	return true
}
