package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	goerrors "github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	yaml "github.com/jesseduffield/yaml"

	changerpkg "github.com/storagedaemon/autochangerd/internal/changer"
	"github.com/storagedaemon/autochangerd/internal/config"
	"github.com/storagedaemon/autochangerd/internal/helper"
	internallog "github.com/storagedaemon/autochangerd/internal/log"
	"github.com/storagedaemon/autochangerd/internal/operator"
	"github.com/storagedaemon/autochangerd/internal/plugin"
	"github.com/storagedaemon/autochangerd/internal/responder"
)

const defaultVersion = "unversioned"

var (
	version = defaultVersion

	configFlag    = false
	debuggingFlag = false
	daemonName    = "autochangerd"
)

func main() {
	flaggy.SetName("autochangerd")
	flaggy.SetDescription("Autochanger controller: arbitrates drive/slot state across concurrent jobs")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/storagedaemon/autochangerd"

	flaggy.Bool(&configFlag, "c", "config", "Print the current default config")
	flaggy.Bool(&debuggingFlag, "d", "debug", "Enable debug-level logging")
	flaggy.String(&daemonName, "n", "name", "Daemon instance name (selects the config directory)")
	flaggy.SetVersion(version)

	flaggy.Parse()

	if configFlag {
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		if err := encoder.Encode(&config.Config{}); err != nil {
			log.Fatal(err.Error())
		}
		fmt.Printf("%v\n", buf.String())
		os.Exit(0)
	}

	cfg, err := config.Load(daemonName, debuggingFlag)
	if err != nil {
		log.Fatal(err.Error())
	}

	logEntry := internallog.NewLogger(cfg)

	bus := plugin.NoOp{}
	inv := helper.NewInvoker(logEntry.WithField("component", "helper"))

	changers, ok := changerpkg.Init(cfg, bus, inv, logEntry.WithField("component", "changer"))
	if !ok {
		logEntry.Error("one or more changers failed to initialize; see preceding errors")
	}
	if len(changers) == 0 {
		newErr := goerrors.Wrap(fmt.Errorf("no changers configured"), 0)
		logEntry.Fatal(newErr.ErrorStack())
	}

	byName := make(map[string]*changerpkg.Changer, len(changers))
	for _, c := range changers {
		byName[c.Name] = c
	}

	logEntry.Infof("autochangerd ready: %d changer(s)", len(changers))
	runConsole(context.Background(), byName, logEntry)
}

// runConsole is a minimal stand-in for the real operator console
// socket — an opaque line-oriented transport; only the Responder
// interface matters to this core. It reads one command per line of
// the form "changer drive cmd [args]" from stdin and reports results
// to stdout.
func runConsole(ctx context.Context, changers map[string]*changerpkg.Changer, log interface{ Warnf(string, ...any) }) {
	scanner := bufio.NewScanner(os.Stdin)
	resp := stdoutResponder{}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		c, ok := changers[fields[0]]
		if !ok {
			log.Warnf("unknown changer %q", fields[0])
			continue
		}
		d := findDrive(c, fields[1])
		if d == nil {
			log.Warnf("unknown drive %q on changer %q", fields[1], fields[0])
			continue
		}

		dcr := &changerpkg.DCR{JobName: "console", Drive: d, Responder: resp}

		switch operator.Command(fields[2]) {
		case operator.CmdDrives, operator.CmdList, operator.CmdListAll, operator.CmdSlots:
			operator.AutochangerCmd(ctx, c, dcr, operator.Command(fields[2]))
		case "transfer":
			if len(fields) != 5 {
				log.Warnf("transfer requires src and dst slot arguments")
				continue
			}
			src, errSrc := strconv.Atoi(fields[3])
			dst, errDst := strconv.Atoi(fields[4])
			if errSrc != nil || errDst != nil {
				log.Warnf("transfer slot arguments must be integers")
				continue
			}
			operator.AutochangerTransferCmd(ctx, c, dcr, src, dst)
		default:
			log.Warnf("unrecognized command %q", fields[2])
		}
	}
}

func findDrive(c *changerpkg.Changer, name string) *changerpkg.Drive {
	for _, d := range c.Drives {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// stdoutResponder implements responder.Responder by printing each line
// to stdout, standing in for the real operator console socket.
type stdoutResponder struct{}

func (stdoutResponder) Send(line string) error {
	_, err := fmt.Println(line)
	return err
}

var _ responder.Responder = stdoutResponder{}
