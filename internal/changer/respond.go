package changer

import "fmt"

// respond sends one line to dcr's operator channel, if any is
// attached; a nil Responder means no operator is watching this job.
func respond(dcr *DCR, code int, format string, args ...any) {
	if dcr.Responder == nil {
		return
	}
	_ = dcr.Responder.Send(fmt.Sprintf("%d %s", code, fmt.Sprintf(format, args...)))
}
