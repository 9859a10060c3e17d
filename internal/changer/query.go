package changer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/storagedaemon/autochangerd/internal/helper"
	"github.com/storagedaemon/autochangerd/internal/respcode"
	"github.com/storagedaemon/autochangerd/internal/template"
)

// GetLoadedSlot is the Query Engine: it reconciles the drive's cache
// against the real robot state via the helper, querying only when the
// cache cannot answer on its own. Returns >0 occupied, 0 empty, -1
// error/unknown.
func (c *Changer) GetLoadedSlot(ctx context.Context, dcr *DCR, held *Held) int {
	d := dcr.Drive

	if !d.IsAutochanger() {
		return -1
	}
	// A known cache value, occupied or empty, is trusted without
	// re-probing the robot; only Unknown forces a helper invocation.
	if cached := d.GetSlot(); !cached.IsUnknown() {
		return cached.QueryResult()
	}
	if d.changer.Virtual() {
		return 1
	}

	var result int
	err := c.WithLock(dcr.JobName, held, func(h Held) error {
		result = c.getLoadedSlotLocked(ctx, dcr)
		return nil
	})
	if err != nil {
		return -1
	}
	return result
}

// getLoadedSlotLocked runs the %o=loaded helper invocation and
// reconciles the cache; the caller must already hold the Changer
// lock.
func (c *Changer) getLoadedSlotLocked(ctx context.Context, dcr *DCR) int {
	d := dcr.Drive

	respond(dcr, respcode.LoadedProbeIssued, "probing loaded slot on drive %q", d.Name)

	cmd := template.Expand(d.ChangerCommand, queryValues(c, d, "loaded"))
	res, err := c.inv.RunAndCapture(ctx, cmd, d.MaxChangerWait)
	if err != nil || res.ExitCode != 0 {
		d.ClearSlot()
		respond(dcr, respcode.BadLoadedProbe, "loaded-probe failed on drive %q: %s", d.Name, res.Output)
		return -1
	}

	n, ok := ParseLeadingInt(res.Output)
	if !ok || n < 0 {
		d.ClearSlot()
		respond(dcr, respcode.BadLoadedProbe, "loaded-probe returned unparseable output on drive %q: %q", d.Name, res.Output)
		return -1
	}
	if n > 0 {
		d.SetSlot(n)
		respond(dcr, respcode.LoadedProbeResult, "drive %q loaded with slot %d", d.Name, n)
		return n
	}
	d.SetSlot(0)
	respond(dcr, respcode.LoadedProbeResult, "drive %q empty", d.Name)
	return 0
}

func queryValues(c *Changer, d *Drive, op string) template.Values {
	return template.Values{
		ChangerName: c.ChangerName,
		Operation:   op,
		DriveIndex:  d.Index,
	}
}

// RunHelper is the narrow exported seam the operator package invokes
// through rather than reaching into the Changer's unexported Invoker
// field directly.
func (c *Changer) RunHelper(ctx context.Context, cmdLine string, timeout time.Duration) (helper.Result, error) {
	return c.inv.RunAndCapture(ctx, cmdLine, timeout)
}

// OpenHelperPipe is the streaming counterpart of RunHelper, used by
// the operator package's list/listall/transfer commands.
func (c *Changer) OpenHelperPipe(ctx context.Context, cmdLine string, timeout time.Duration) (*helper.Pipe, error) {
	return c.inv.OpenPipe(ctx, cmdLine, timeout)
}

// ParseLeadingInt parses the decimal integer prefix of a helper's
// output, tolerating leading whitespace (used by the slots command).
func ParseLeadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
