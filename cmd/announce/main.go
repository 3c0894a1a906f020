package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cliplugins "announce/internal/cli_plugins"
	"announce/pkg/cli"
)

func main() {
	// cancelled on the first SIGINT/SIGTERM; commands shut down from ctx
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cliplugins.NewAppContext()

	c := cli.NewCLI(ctx, "announce", "Announce this node on the local network")
	app.BindFlags(c.Root().PersistentFlags())
	cliplugins.DescribeConfig(c.Root())

	c.RegisterPlugin(cliplugins.NewRunCommand(app))
	c.RegisterPlugin(cliplugins.NewBeaconCommand(app))
	c.RegisterPlugin(cliplugins.NewKeygenCommand(app))
	c.RegisterPlugin(cliplugins.NewListenCommand(app))
	c.RegisterPlugin(cliplugins.NewPeersCommand(app))

	if err := c.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
