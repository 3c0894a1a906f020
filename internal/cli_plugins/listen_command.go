package cliplugins

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"announce/internal/announcer"
	"announce/internal/identity"
	"announce/internal/listener"
	"announce/internal/storage/peerstore"
	"announce/internal/util/logger/sl"
)

// ListenCommand receives beacons and records the peers behind them.
type ListenCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewListenCommand(app *AppContext) *ListenCommand {
	return &ListenCommand{app: app}
}

func (l *ListenCommand) Meta() *cobra.Command {
	if l.cmd != nil {
		return l.cmd
	}
	l.cmd = &cobra.Command{
		Use:   "listen",
		Short: "Record peers that announce themselves",
		Long:  "Listen for discovery beacons and store every peer heard in peers_db.",
		Args:  cobra.NoArgs,
	}
	l.cmd.Flags().IntP("port", "p", 0, "port to listen on (defaults to broadcast_port or port)")
	return l.cmd
}

func (l *ListenCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	const op = "cliplugins.Listen"

	cfg, err := l.app.LoadConfig()
	if err != nil {
		return err
	}
	log := l.app.Logger(cfg).With(slog.String("op", op))

	port := cfg.BroadcastPort
	if port == 0 {
		port = cfg.Port
	}
	if cmd.Flags().Changed("port") {
		if port, err = cmd.Flags().GetInt("port"); err != nil {
			return err
		}
	}

	// Without a key of our own every beacon is somebody else's.
	var selfKey string
	if keys, err := identity.Load(cfg.KeyFile); err == nil {
		selfKey = keys.ShsKey()
	}

	store, err := peerstore.New(peerstore.Config{Path: cfg.PeersDB})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	handler := func(peer announcer.Identity, from netip.AddrPort) {
		p, isNew, err := store.Record(peer, from)
		if err != nil {
			log.Error("Record peer failed", slog.String("from", from.String()), sl.Err(err))
			return
		}
		if isNew {
			fmt.Fprintf(out, "%s %s:%d %s\n", color.GreenString("new peer"), p.Addr, p.Port, p.PublicKey)
		}
	}

	ln, err := listener.Listen(ctx, listener.Config{Port: port, SelfKey: selfKey}, handler, log)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer ln.Close()

	return ln.Serve(ctx)
}
