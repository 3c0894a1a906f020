package cliplugins

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"announce/internal/identity"
)

type KeygenCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewKeygenCommand(app *AppContext) *KeygenCommand {
	return &KeygenCommand{app: app}
}

func (k *KeygenCommand) Meta() *cobra.Command {
	if k.cmd != nil {
		return k.cmd
	}
	k.cmd = &cobra.Command{
		Use:   "keygen",
		Short: "Create the node identity",
		Long:  "Generate an ed25519 keypair and store its seed in key_file.",
		Args:  cobra.NoArgs,
	}
	k.cmd.Flags().BoolP("force", "f", false, "overwrite an existing key")
	return k.cmd
}

func (k *KeygenCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg, err := k.app.LoadConfig()
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.KeyFile); err == nil && !force {
		return fmt.Errorf("key file %s already exists, use --force to replace it", cfg.KeyFile)
	}

	keys, err := identity.Generate(nil)
	if err != nil {
		return err
	}
	if err := identity.Save(cfg.KeyFile, keys); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("created"), keys.ID())
	return nil
}
