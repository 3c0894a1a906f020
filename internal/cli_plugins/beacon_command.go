package cliplugins

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"announce/internal/announcer"
	"announce/internal/identity"
	"announce/internal/netaddr"
)

// BeaconCommand prints the beacon this node would broadcast.
type BeaconCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewBeaconCommand(app *AppContext) *BeaconCommand {
	return &BeaconCommand{app: app}
}

func (b *BeaconCommand) Meta() *cobra.Command {
	if b.cmd != nil {
		return b.cmd
	}
	b.cmd = &cobra.Command{
		Use:   "beacon",
		Short: "Print the discovery beacon",
		Long:  "Print the net:<ip>:<port>~shs:<key> beacon and its destination without sending anything.",
		Args:  cobra.NoArgs,
	}
	return b.cmd
}

func (b *BeaconCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg, err := b.app.LoadConfig()
	if err != nil {
		return err
	}

	keys, err := identity.Load(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("%w (run keygen first)", err)
	}

	local, broadcast, err := netaddr.Resolve(cfg.LocalAddr, cfg.BroadcastAddr)
	if err != nil {
		return err
	}

	a, err := announcer.New(announcer.Config{
		LocalAddr:     local,
		Port:          cfg.Port,
		BroadcastAddr: broadcast,
		BroadcastPort: cfg.BroadcastPort,
		Interval:      cfg.Interval,
		PublicKey:     keys.ShsKey(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, a.Identity().String())
	fmt.Fprintf(out, "destination: %s every %s\n", a.Destination(), a.Interval())
	fmt.Fprintf(out, "id: %s\n", keys.ID())
	return nil
}
