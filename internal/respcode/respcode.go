// Package respcode holds the operator response codes shared between
// the core engines (internal/changer) that issue them inline as they
// work and the internal/operator commands that issue the rest. A
// single shared numbering avoids two packages inventing diverging
// codes for the same event.
package respcode

const (
	LoadedProbeIssued = 3301
	LoadedProbeResult = 3302
	LoadIssued        = 3304
	LoadOK            = 3305
	GenericCmdIssued  = 3306
	UnloadIssued      = 3307
	TransferOK        = 3308

	BadLoadedProbe   = 3991
	LoadFailed       = 3992
	NotAutochanger   = 3993
	BadUnload        = 3995
	OpenPipeFailed   = 3996
	BadUnloadSibling = 3997
	GenericError     = 3998
)
