// Package template expands `%`-escape helper command templates into
// concrete command lines. A single-pass byte scanner expresses the
// tight `%x` escape grammar more directly than a text/template-style
// engine would.
package template

import (
	"strconv"
	"strings"
)

// Values supplies the substitutions for the general templater, used
// by load/unload/loaded/list/listall/slots and any other non-transfer
// operation.
type Values struct {
	ChangerName string // %c
	Operation   string // %o
	Slot        int    // %s, %S: target/source slot depending on operation
	DriveIndex  int    // %d
	ChangerFile string // %f: control directory / archive device path
	JobName     string // %j
	VolumeName  string // %v
}

// TransferValues supplies the substitutions for the transfer
// templater variant, which additionally exposes the destination slot
// via %a and does not support %S, %j or %v.
type TransferValues struct {
	ChangerName string // %c
	ChangerFile string // %f
	DriveIndex  int    // %d
	SrcSlot     int    // %s
	DstSlot     int    // %a
}

// Expand expands tpl using the general variable set. An unrecognized
// %x is elided, and %% yields a literal %.
func Expand(tpl string, v Values) string {
	return expand(tpl, func(esc byte) (string, bool) {
		switch esc {
		case 'c':
			return v.ChangerName, true
		case 'o':
			return v.Operation, true
		case 's', 'S':
			return strconv.Itoa(v.Slot), true
		case 'd':
			return strconv.Itoa(v.DriveIndex), true
		case 'f':
			return v.ChangerFile, true
		case 'j':
			return v.JobName, true
		case 'v':
			return v.VolumeName, true
		default:
			return "", false
		}
	})
}

// ExpandTransfer expands tpl using the transfer variable set. Keys
// the transfer variant does not support (%S, %j, %v) emit nothing,
// same as any other unrecognized escape.
func ExpandTransfer(tpl string, v TransferValues) string {
	return expand(tpl, func(esc byte) (string, bool) {
		switch esc {
		case 'c':
			return v.ChangerName, true
		case 'o':
			return "transfer", true
		case 'a':
			return strconv.Itoa(v.DstSlot), true
		case 's':
			return strconv.Itoa(v.SrcSlot), true
		case 'd':
			return strconv.Itoa(v.DriveIndex), true
		case 'f':
			return v.ChangerFile, true
		default:
			return "", false
		}
	})
}

// expand scans tpl byte by byte, passing through non-% bytes verbatim
// and resolving %-escapes via resolve. A trailing, unterminated % is
// dropped. resolve returning ok=false elides the escape entirely.
func expand(tpl string, resolve func(esc byte) (string, bool)) string {
	var b strings.Builder
	b.Grow(len(tpl))

	for i := 0; i < len(tpl); i++ {
		ch := tpl[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		i++
		if i >= len(tpl) {
			break
		}
		esc := tpl[i]
		if esc == '%' {
			b.WriteByte('%')
			continue
		}
		if s, ok := resolve(esc); ok {
			b.WriteString(s)
		}
	}

	return b.String()
}
