// Command mailprobe drives an LMTP/IMAP mail server from the command line:
// it delivers test messages, retrieves them back, and controls the fixture
// database and administrative tooling around the server under test.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := &env{}
	app := &cli.App{
		Name:   "mailprobe",
		Usage:  "exercise a mail server over LMTP and IMAP",
		Flags:  globalFlags(),
		Before: p.setup,
		After:  p.teardown,
		Commands: []*cli.Command{
			deliverCommand(p),
			deliverFileCommand(p),
			receiveCommand(p),
			headersCommand(p),
			partsCommand(p),
			searchCommand(p),
			storeCommand(p),
			cyclesCommand(p),
			adminCommand(p),
			fixtureCommand(p),
			storageCommand(p),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
