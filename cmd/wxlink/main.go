package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/wxlink/cmd/wxlink/relay"
	"github.com/temoto/wxlink/cmd/wxlink/subcmd"
	"github.com/temoto/wxlink/internal/state"
	"github.com/temoto/wxlink/internal/tele"
	"github.com/temoto/wxlink/log2"
)

var (
	BuildVersion string = "unknown" // set by ldflags -X
	log                 = log2.NewStderr(log2.LDebug)
	modules             = []subcmd.Mod{
		relay.Mod,
		relay.ConfigCheckMod,
	}
)

func main() {
	flagset := flag.NewFlagSet("wxlink", flag.ContinueOnError)
	flagConfig := flagset.String("config", "wxlink.hcl", "")
	flagVersion := flagset.Bool("version", false, "print build version and exit")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: wxlink [option...] [command]\n\nCommands:\n")
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %s\n", m.Name)
		}
		fmt.Fprintf(flagset.Output(), "\nOptions:\n")
		flagset.PrintDefaults()
	}
	if err := flagset.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	if *flagVersion {
		fmt.Printf("wxlink %s\n", BuildVersion)
		os.Exit(0)
	}

	command := flagset.Arg(0)
	if command == "" {
		command = relay.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		log.SetFlags(log2.LStdFlags)
	}
	log.Debugf("wxlink version=%s starting command=%s", BuildVersion, mod.Name)

	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion
	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if !config.Tele.LogDebug {
		log.SetLevel(log2.LInfo)
	}
	tele.SetMqttLog(log, config.Tele.MqttLogDebug)

	if err := mod.Main(ctx, config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
