package changer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storagedaemon/autochangerd/internal/catalog"
	"github.com/storagedaemon/autochangerd/internal/helper"
	"github.com/storagedaemon/autochangerd/internal/plugin"
	"github.com/storagedaemon/autochangerd/internal/responder"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// countingInvoker returns an Invoker whose underlying *exec.Cmd
// construction is counted, so scenario tests can assert on the exact
// number of helper invocations issued.
func countingInvoker(t *testing.T) (*helper.Invoker, *int) {
	t.Helper()
	calls := 0
	inv := helper.NewInvoker(discardLogger())
	inv.SetCommand(func(name string, args ...string) *exec.Cmd {
		calls++
		return exec.Command(name, args...)
	})
	return inv, &calls
}

// helperScript writes a tiny shell helper to a temp file and returns
// its path. The script receives the operation keyword as $1 and the
// slot as $2.
func helperScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newChangerWithDrives(inv *helper.Invoker, scriptPath string, numDrives int) *Changer {
	// An empty scriptPath stays empty: that is the virtual-changer marker.
	tpl := scriptPath
	if tpl != "" {
		tpl += " %o %S"
	}
	c := New("lib0", "/dev/sg0", tpl, plugin.NoOp{}, inv, discardLogger())
	for i := 0; i < numDrives; i++ {
		d := &Drive{
			Name:           "drive" + string(rune('0'+i)),
			Index:          i,
			MaxChangerWait: 5 * time.Second,
			ChangerName:    c.ChangerName,
			ChangerCommand: tpl,
			changer:        c,
			Log:            discardLogger(),
			loaded:         UnknownSlot(),
		}
		c.Drives = append(c.Drives, d)
	}
	return c
}

// Cache hit: no robot action at all.
func TestAutoloadDeviceCacheHit(t *testing.T) {
	inv, calls := countingInvoker(t)
	script := helperScript(t, `exit 9`) // would fail loudly if ever invoked
	c := newChangerWithDrives(inv, script, 1)
	c.Drives[0].SetSlot(5)

	dcr := &DCR{JobName: "job1", Drive: c.Drives[0], Vol: &catalog.VolCatInfo{InChanger: true, Slot: 5}}
	code := c.AutoloadDevice(context.Background(), dcr, false)

	assert.Equal(t, Loaded, code)
	assert.Equal(t, 0, *calls)
	assert.True(t, c.Drives[0].GetSlot().IsOccupied())
	assert.Equal(t, 5, c.Drives[0].GetSlot().Slot())
}

// Simple load into an empty drive.
func TestAutoloadDeviceSimpleLoad(t *testing.T) {
	inv, calls := countingInvoker(t)
	script := helperScript(t, `
case "$1" in
  load) exit 0 ;;
  *) exit 1 ;;
esac`)
	c := newChangerWithDrives(inv, script, 1)
	c.Drives[0].SetSlot(0)

	rec := &responder.Recording{}
	dcr := &DCR{JobName: "job1", Drive: c.Drives[0], Vol: &catalog.VolCatInfo{InChanger: true, Slot: 7}, Responder: rec}
	code := c.AutoloadDevice(context.Background(), dcr, false)

	assert.Equal(t, Loaded, code)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 7, c.Drives[0].GetSlot().Slot())
	assert.Contains(t, rec.Lines[0], "3304")
	assert.Contains(t, rec.Lines[1], "3305")
}

// Loading a slot held by a sibling drive evicts it first.
func TestAutoloadDeviceEvictsSibling(t *testing.T) {
	inv, calls := countingInvoker(t)
	script := helperScript(t, `
case "$1" in
  load) exit 0 ;;
  unload) exit 0 ;;
  *) exit 1 ;;
esac`)
	c := newChangerWithDrives(inv, script, 2)
	c.Drives[0].SetSlot(0)
	c.Drives[1].SetSlot(9)

	dcr := &DCR{JobName: "job1", Drive: c.Drives[0], Vol: &catalog.VolCatInfo{InChanger: true, Slot: 9}}
	code := c.AutoloadDevice(context.Background(), dcr, false)

	assert.Equal(t, Loaded, code)
	assert.Equal(t, 2, *calls) // unload drive1, load drive0
	assert.True(t, c.Drives[1].GetSlot().IsEmpty())
	assert.Equal(t, 9, c.Drives[0].GetSlot().Slot())
}

// A busy sibling cannot be evicted; the load is abandoned.
func TestAutoloadDeviceBusySiblingFails(t *testing.T) {
	origWait := waitForDevice
	waitForDevice = func() {}
	defer func() { waitForDevice = origWait }()

	inv, calls := countingInvoker(t)
	script := helperScript(t, `exit 0`)
	c := newChangerWithDrives(inv, script, 2)
	c.Drives[0].SetSlot(0)
	c.Drives[1].SetSlot(9)
	c.Drives[1].Busy = true

	vol := &catalog.VolCatInfo{InChanger: true, Slot: 9}
	dcr := &DCR{JobName: "job1", Drive: c.Drives[0], Vol: vol}
	code := c.AutoloadDevice(context.Background(), dcr, false)

	assert.Equal(t, ChangerError, code)
	assert.Equal(t, 0, *calls)
	assert.False(t, vol.InChanger)
	assert.True(t, c.Drives[1].GetSlot().IsOccupied())
	assert.Equal(t, 9, c.Drives[1].GetSlot().Slot())
}

// The load helper itself fails.
func TestAutoloadDeviceLoadHelperFails(t *testing.T) {
	inv, _ := countingInvoker(t)
	script := helperScript(t, `
case "$1" in
  load) echo "stuck"; exit 2 ;;
  *) exit 1 ;;
esac`)
	c := newChangerWithDrives(inv, script, 1)
	c.Drives[0].SetSlot(0)

	rec := &responder.Recording{}
	dcr := &DCR{JobName: "job1", Drive: c.Drives[0], Vol: &catalog.VolCatInfo{InChanger: true, Slot: 7}, Responder: rec}
	code := c.AutoloadDevice(context.Background(), dcr, false)

	assert.Equal(t, ChangerError, code)
	assert.True(t, c.Drives[0].GetSlot().IsUnknown())

	var sawFailure bool
	for _, line := range rec.Lines {
		if strings.Contains(line, "3992") && strings.Contains(line, "stuck") {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "expected a 3992 response mentioning the helper's diagnostic output")
}

// A virtual changer never invokes the helper.
func TestAutoloadDeviceVirtualChanger(t *testing.T) {
	inv, calls := countingInvoker(t)
	c := newChangerWithDrives(inv, "", 1)

	dcr := &DCR{JobName: "job1", Drive: c.Drives[0]}
	code := c.AutoloadDevice(context.Background(), dcr, false)

	assert.Equal(t, Loaded, code)
	assert.Equal(t, 0, *calls)
	assert.Equal(t, 1, c.GetLoadedSlot(context.Background(), dcr, nil))
}

func TestUnloadAutochangerNoOpWhenEmpty(t *testing.T) {
	inv, calls := countingInvoker(t)
	script := helperScript(t, `exit 0`)
	c := newChangerWithDrives(inv, script, 1)
	c.Drives[0].SetSlot(0)

	dcr := &DCR{JobName: "job1", Drive: c.Drives[0]}
	ok := c.UnloadAutochanger(context.Background(), dcr, 0, nil)

	assert.True(t, ok)
	assert.Equal(t, 0, *calls)
}

func TestUnloadAutochangerRunsHelperWhenOccupied(t *testing.T) {
	inv, calls := countingInvoker(t)
	script := helperScript(t, `exit 0`)
	c := newChangerWithDrives(inv, script, 1)
	c.Drives[0].SetSlot(4)

	dcr := &DCR{JobName: "job1", Drive: c.Drives[0]}
	ok := c.UnloadAutochanger(context.Background(), dcr, 4, nil)

	assert.True(t, ok)
	assert.Equal(t, 1, *calls)
	assert.True(t, c.Drives[0].GetSlot().IsEmpty())
}

