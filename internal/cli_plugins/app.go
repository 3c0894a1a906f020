package cliplugins

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"announce/internal/config"
	"announce/internal/util/logger"
)

// AppContext holds what every command needs: where the config lives and
// where logs go.
type AppContext struct {
	ConfigPath string
	// LogOutput defaults to stdout.
	LogOutput io.Writer
}

func NewAppContext() *AppContext {
	return &AppContext{LogOutput: os.Stdout}
}

func (a *AppContext) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&a.ConfigPath, "config", "c", "", "path to config file (or CONFIG_PATH)")
}

// DescribeConfig appends the environment variables understood by the
// config loader to the help of root and its subcommands.
func DescribeConfig(root *cobra.Command) {
	if desc := config.Usage(); desc != "" {
		root.SetUsageTemplate(root.UsageTemplate() + "\n" + desc + "\n")
	}
}

func (a *AppContext) LoadConfig() (*config.Config, error) {
	return config.Load(a.ConfigPath)
}

func (a *AppContext) Logger(cfg *config.Config) *slog.Logger {
	out := a.LogOutput
	if out == nil {
		out = os.Stdout
	}
	// no escape codes in redirected local logs
	if f, ok := out.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		color.NoColor = true
	}
	return logger.Setup(cfg.Env, out)
}
