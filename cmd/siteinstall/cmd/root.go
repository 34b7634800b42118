package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/siteinstaller"
	"github.com/GoCodeAlone/siteinstaller/host"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("siteinstall v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// globalOptions holds the persistent flags.
type globalOptions struct {
	configFile string
	root       string
	logLevel   string
}

// NewRootCommand creates the root command for the siteinstall application
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "siteinstall",
		Short: "Install a site from a profile in a single pass",
		Long: `siteinstall installs a platform site from an install profile without
going through the interactive installer. It bootstraps the platform, creates
the bookkeeping tables and enables every module the profile needs.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "installer configuration file (YAML)")
	flags.StringVarP(&opts.root, "root", "r", "", "platform root directory")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(NewInstallCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewUserPasswordCommand(opts))

	return cmd
}

// load reads the installer configuration, letting flags win.
func (o *globalOptions) load() (*siteinstaller.Config, error) {
	cfg, err := siteinstaller.LoadConfig(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.root != "" {
		cfg.Root = o.root
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns a text logger writing to w at level.
func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// newHost creates the platform host and the stager driving it.
func newHost(cfg *siteinstaller.Config, logger siteinstaller.Logger) (*host.Host, *siteinstaller.BootstrapStager) {
	h := host.New(cfg.Root,
		host.WithLogger(logger),
		host.WithSettingsFile(cfg.SettingsFile),
		host.WithModuleDirs(cfg.ModuleDirs...),
		host.WithProfileDir(cfg.ProfileDir),
	)
	stager := siteinstaller.NewBootstrapStager(cfg.Root, h,
		siteinstaller.WithRootLayout(cfg.RootLayout()),
		siteinstaller.WithStagerLogger(logger),
	)
	return h, stager
}
