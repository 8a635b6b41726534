package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/liuran001/WaJID-Go/bot/app"
)

var (
	versionName = ""
	commitSHA   = ""
	buildTime   = ""
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: %s [-c config.ini] <command> [args]

commands:
  normalize <id>...     print the canonical form of identifiers
  resolve <id>...       resolve LIDs and JIDs to phone-number JIDs
  phone <number>...     look up phone numbers on WhatsApp
  group <group-jid>...  print enriched group metadata
  forget <lid>...       drop cached and persisted mappings for LIDs
  lids <jid>...         list persisted LIDs that resolved to a JID
  status                print persisted mapping count and counters
  serve                 keep the cache warm until interrupted
  version               print build information
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("c", "config.ini", "config file, empty for defaults and WAJID_* environment")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	buildInfo := app.BuildInfo{
		RuntimeVer: runtime.Version(),
		BinVersion: versionName,
		CommitSHA:  commitSHA,
		BuildTime:  buildTime,
		BuildArch:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	application, err := app.New(ctx, *configPath, buildInfo)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	runErr := application.Run(ctx, flag.Arg(0), flag.Args()[1:])

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		if errors.Is(runErr, app.ErrUnknownCommand) || errors.Is(runErr, app.ErrMissingArgs) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
