package cliplugins

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"announce/internal/storage/peerstore"
)

// PeersCommand lists the peers recorded by listen.
type PeersCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewPeersCommand(app *AppContext) *PeersCommand {
	return &PeersCommand{app: app}
}

func (p *PeersCommand) Meta() *cobra.Command {
	if p.cmd != nil {
		return p.cmd
	}
	p.cmd = &cobra.Command{
		Use:   "peers",
		Short: "List discovered peers",
		Long:  "List the peers stored in peers_db, most recently seen first.",
		Args:  cobra.NoArgs,
	}
	p.cmd.Flags().Duration("prune", 0, "delete peers not seen for this long before listing")
	return p.cmd
}

func (p *PeersCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	const op = "cliplugins.Peers"

	cfg, err := p.app.LoadConfig()
	if err != nil {
		return err
	}
	prune, err := cmd.Flags().GetDuration("prune")
	if err != nil {
		return err
	}

	store, err := peerstore.New(peerstore.Config{Path: cfg.PeersDB})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if prune > 0 {
		n, err := store.Prune(time.Now().Add(-prune))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n > 0 {
			fmt.Fprintf(out, "%s %d\n", color.YellowString("pruned"), n)
		}
	}

	peers, err := store.List()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(peers) == 0 {
		fmt.Fprintln(out, "no peers")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tADDRESS\tSEEN\tLAST SEEN")
	for _, peer := range peers {
		fmt.Fprintf(tw, "%s\t%s:%d\t%d\t%s\n",
			peer.PublicKey, peer.Addr, peer.Port, peer.Seen, peer.LastSeen.Format(time.RFC3339))
	}
	return tw.Flush()
}
