package changer

import (
	"fmt"
	"time"

	"github.com/imdario/mergo"
	"github.com/sirupsen/logrus"

	"github.com/storagedaemon/autochangerd/internal/cerr"
	"github.com/storagedaemon/autochangerd/internal/config"
	"github.com/storagedaemon/autochangerd/internal/helper"
	"github.com/storagedaemon/autochangerd/internal/plugin"
)

// defaultMaxChangerWait applies when a Drive's config omits
// max_changer_wait.
const defaultMaxChangerWait = 120 * time.Second

// templateOverride is the merge shape for a Drive's changer_name/
// changer_command directives against its owning Changer's. ChangerCommand
// stays a *string through the merge so mergo.Merge can tell "the Drive
// never set it" (nil, fill from the Changer) apart from "the Drive (or
// Changer) set it to the empty string" (non-nil, the virtual-changer
// marker) — a plain string would collapse both to the zero value.
type templateOverride struct {
	ChangerName    string
	ChangerCommand *string
}

// Init builds the Changers described by cfg: it fills each Drive's
// changer_name/changer_command from its owning Changer where the
// Drive omits them, assigns drive_index as 0-based position within
// the Changer, and reports whether every Changer initialized cleanly.
// Partial failure still returns every built Changer so a caller can
// inspect what did come up; each offending drive is logged and the
// returned bool is false.
func Init(cfg *config.Config, bus plugin.Bus, inv *helper.Invoker, log *logrus.Entry) ([]*Changer, bool) {
	ok := true
	var changers []*Changer

	for _, cc := range cfg.Changers {
		changerCommand := ""
		if cc.ChangerCommand != nil {
			changerCommand = *cc.ChangerCommand
		}
		c := New(cc.Name, cc.ChangerName, changerCommand, bus, inv, log.WithField("changer", cc.Name))

		drives := cc.Drives
		if len(drives) == 0 {
			drives = []*config.DriveConfig{{Name: cc.Name}}
		}

		for idx, dc := range drives {
			merged := templateOverride{ChangerName: dc.ChangerName, ChangerCommand: dc.ChangerCommand}
			defaults := templateOverride{ChangerName: cc.ChangerName, ChangerCommand: cc.ChangerCommand}
			if err := mergo.Merge(&merged, defaults, mergo.WithoutDereference); err != nil {
				ok = false
				wrapped := cerr.Config(fmt.Sprintf("drive %q: failed to merge changer template defaults: %v", dc.Name, err))
				c.Log.WithField("drive", dc.Name).Error(wrapped.Error())
				continue
			}

			// A changer_command explicitly set to "" is the documented
			// virtual-changer marker, not a missing value; only a
			// directive that was never configured at either level (nil
			// after the merge) fails initialization here, alongside a
			// missing changer_name.
			if merged.ChangerName == "" {
				ok = false
				err := cerr.Config(fmt.Sprintf("drive %q is missing changer_name and its changer has none to inherit", dc.Name))
				c.Log.WithField("drive", dc.Name).Error(err.Error())
				continue
			}
			if merged.ChangerCommand == nil {
				ok = false
				err := cerr.Config(fmt.Sprintf("drive %q is missing changer_command and its changer has none to inherit", dc.Name))
				c.Log.WithField("drive", dc.Name).Error(err.Error())
				continue
			}

			maxWait := defaultMaxChangerWait
			if dc.MaxChangerWait > 0 {
				maxWait = time.Duration(dc.MaxChangerWait) * time.Second
			}
			d := &Drive{
				Name:           dc.Name,
				Index:          idx,
				AlwaysOpen:     dc.AlwaysOpen,
				MaxChangerWait: maxWait,
				ChangerName:    merged.ChangerName,
				ChangerCommand: *merged.ChangerCommand,
				changer:        c,
				Log:            c.Log.WithField("drive", dc.Name),
				loaded:         UnknownSlot(),
			}
			c.Drives = append(c.Drives, d)
		}

		changers = append(changers, c)
	}

	return changers, ok
}
