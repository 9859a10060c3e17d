// Package operator implements the Operator Commands surface: drives,
// list, listall, slots and transfer, all reported back over the
// line-oriented console described by internal/responder.
//
// Helper subprocess output streams line by line to an arbitrary
// Responder; fatih/color tags each response line to distinguish
// success (33xx) from failure (39xx) codes.
package operator

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/storagedaemon/autochangerd/internal/changer"
	"github.com/storagedaemon/autochangerd/internal/respcode"
	"github.com/storagedaemon/autochangerd/internal/template"
)

// Response codes re-exported for callers that only import this
// package; see internal/respcode for the canonical list.
const (
	RespLoadedProbeIssued   = respcode.LoadedProbeIssued
	RespLoadedProbeResult   = respcode.LoadedProbeResult
	RespLoadIssued          = respcode.LoadIssued
	RespLoadOK              = respcode.LoadOK
	RespGenericCmdIssued    = respcode.GenericCmdIssued
	RespUnloadIssued        = respcode.UnloadIssued
	RespTransferOK          = respcode.TransferOK
	RespBadLoadedProbe      = respcode.BadLoadedProbe
	RespLoadFailed          = respcode.LoadFailed
	RespNotAutochanger      = respcode.NotAutochanger
	RespBadUnload           = respcode.BadUnload
	RespOpenPipeFailed      = respcode.OpenPipeFailed
	RespBadUnloadSibling    = respcode.BadUnloadSibling
	RespGenericChangerError = respcode.GenericError
)

var (
	okCode  = color.New(color.FgGreen).SprintFunc()
	badCode = color.New(color.FgRed).SprintFunc()
)

// Command is one of the autochanger_cmd operations.
type Command string

const (
	CmdDrives  Command = "drives"
	CmdList    Command = "list"
	CmdListAll Command = "listall"
	CmdSlots   Command = "slots"
)

func send(dcr *changer.DCR, code int, ok bool, format string, args ...any) {
	if dcr.Responder == nil {
		return
	}
	tag := badCode(code)
	if ok {
		tag = okCode(code)
	}
	line := fmt.Sprintf(format, args...)
	_ = dcr.Responder.Send(fmt.Sprintf("%s %s", tag, line))
}

func sendRaw(dcr *changer.DCR, line string) {
	if dcr.Responder == nil {
		return
	}
	_ = dcr.Responder.Send(line)
}

// AutochangerCmd dispatches one of drives/list/listall/slots against
// dcr's Changer. It returns true unless the command could not even be
// attempted (e.g. the Changer lock could not be acquired); a helper
// failure still returns true after reporting a failure response code
// to the operator, preserving compatibility with callers that treat
// the return value as "command dispatched" rather than "succeeded".
func AutochangerCmd(ctx context.Context, c *changer.Changer, dcr *changer.DCR, cmd Command) bool {
	d := dcr.Drive
	if !d.IsAutochanger() {
		send(dcr, RespNotAutochanger, false, "Device %q not an autochanger device", d.Name)
		return true
	}

	switch cmd {
	case CmdDrives:
		n := len(c.Drives)
		if n == 0 {
			n = 1
		}
		send(dcr, RespGenericCmdIssued, true, "drives=%d", n)
		return true

	case CmdList, CmdListAll:
		return listCmd(ctx, c, dcr, cmd)

	case CmdSlots:
		return slotsCmd(ctx, c, dcr)

	default:
		send(dcr, RespGenericChangerError, false, "unrecognized autochanger command %q", cmd)
		return true
	}
}

func listCmd(ctx context.Context, c *changer.Changer, dcr *changer.DCR, cmd Command) bool {
	d := dcr.Drive

	d.SetSlot(0)
	c.GetLoadedSlot(ctx, dcr, nil)

	held, err := c.Acquire(dcr.JobName)
	if err != nil {
		return false
	}
	defer held.Release(dcr.JobName)

	op := "list"
	if cmd == CmdListAll {
		op = "listall"
	}
	cmdLine := template.Expand(d.ChangerCommand, template.Values{
		ChangerName: c.ChangerName,
		Operation:   op,
		DriveIndex:  d.Index,
	})

	pipe, err := c.OpenHelperPipe(ctx, cmdLine, d.MaxChangerWait)
	if err != nil {
		send(dcr, RespOpenPipeFailed, false, "failed to open helper pipe: %v", err)
		return true
	}

	send(dcr, RespGenericCmdIssued, true, "%s issued", op)
	for line := range pipe.Lines {
		sendRaw(dcr, line)
	}
	pipe.Wait()
	return true
}

func slotsCmd(ctx context.Context, c *changer.Changer, dcr *changer.DCR) bool {
	d := dcr.Drive

	held, err := c.Acquire(dcr.JobName)
	if err != nil {
		return false
	}
	defer held.Release(dcr.JobName)

	run := func() (int, bool) {
		cmdLine := template.Expand(d.ChangerCommand, template.Values{
			ChangerName: c.ChangerName,
			Operation:   "slots",
			DriveIndex:  d.Index,
		})
		res, err := c.RunHelper(ctx, cmdLine, d.MaxChangerWait)
		if err != nil || res.ExitCode != 0 {
			return 0, false
		}
		n, ok := changer.ParseLeadingInt(res.Output)
		return n, ok
	}

	n, ok := run()
	if ok && n == 0 {
		// Exactly one retry on a zero reading.
		n, ok = run()
	}
	if !ok {
		send(dcr, RespGenericChangerError, false, "slots probe failed")
		return true
	}

	send(dcr, RespGenericCmdIssued, true, "slots=%d", n)
	return true
}

// AutochangerTransferCmd runs the transfer helper variant, moving a
// volume from srcSlot to dstSlot, streaming its stdout to the
// operator and reporting success or failure.
func AutochangerTransferCmd(ctx context.Context, c *changer.Changer, dcr *changer.DCR, srcSlot, dstSlot int) bool {
	d := dcr.Drive
	if !d.IsAutochanger() {
		send(dcr, RespNotAutochanger, false, "Device %q not an autochanger device", d.Name)
		return true
	}

	held, err := c.Acquire(dcr.JobName)
	if err != nil {
		return false
	}
	defer held.Release(dcr.JobName)

	cmdLine := template.ExpandTransfer(d.ChangerCommand, template.TransferValues{
		ChangerName: c.ChangerName,
		DriveIndex:  d.Index,
		SrcSlot:     srcSlot,
		DstSlot:     dstSlot,
	})

	pipe, err := c.OpenHelperPipe(ctx, cmdLine, d.MaxChangerWait)
	if err != nil {
		send(dcr, RespOpenPipeFailed, false, "failed to open helper pipe: %v", err)
		return true
	}

	for line := range pipe.Lines {
		sendRaw(dcr, line)
	}
	if code := pipe.Wait(); code != 0 {
		send(dcr, RespGenericChangerError, false, "transfer failed with exit code %d", code)
		return true
	}

	send(dcr, RespTransferOK, true, "Successfully transferred volume from slot %d to %d.", srcSlot, dstSlot)
	return true
}
