package cmd

import (
	"fmt"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/siteinstaller"
	"github.com/GoCodeAlone/siteinstaller/host"
	"github.com/GoCodeAlone/siteinstaller/manifest"
)

// NewStatusCommand creates the site:status command
func NewStatusCommand(global *globalOptions) *cobra.Command {
	var modules bool
	cmd := &cobra.Command{
		Use:     "site:status",
		Aliases: []string{"st"},
		Short:   "Show the platform and install status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, global, modules)
		},
	}
	cmd.Flags().BoolVarP(&modules, "modules", "m", false, "also list the modules known to the site")
	return cmd
}

func runStatus(cmd *cobra.Command, global *globalOptions, listModules bool) error {
	cfg, err := global.load()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	h, stager := newHost(cfg, logger)
	defer h.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true

	if err := stager.EnsureLevel(ctx, siteinstaller.LevelSettings); err != nil {
		return err
	}
	table.AddRow("Platform root:", stager.Root())
	table.AddRow("Core version:", stager.Version())
	table.AddRow("Database driver:", h.Settings().Database.Driver)

	if err := stager.EnsureLevel(ctx, siteinstaller.LevelDatabase); err != nil {
		table.AddRow("Database:", "Unavailable")
		table.AddRow("Bootstrap:", stager.Reached().String())
		fmt.Fprintln(out, table)
		return nil
	}
	table.AddRow("Database:", "Connected")

	installed, err := h.TableExists(ctx, siteinstaller.BookkeepingTable)
	if err != nil {
		return err
	}
	if !installed {
		table.AddRow("Site:", "Not installed")
		table.AddRow("Bootstrap:", stager.Reached().String())
		fmt.Fprintln(out, table)
		return nil
	}

	var profile string
	if err := stager.EnsureLevel(ctx, siteinstaller.LevelVariables); err != nil {
		return err
	}
	if _, err := h.Variable("install_profile", &profile); err != nil {
		return err
	}
	offline, err := siteOffline(h.Variable)
	if err != nil {
		return err
	}
	state := "Online"
	if offline {
		state = "Offline"
	}
	table.AddRow("Site:", "Installed")
	table.AddRow("Install profile:", profile)
	table.AddRow("Status:", state)
	table.AddRow("Bootstrap:", stager.Reached().String())
	fmt.Fprintln(out, table)

	if !listModules {
		return nil
	}
	return printModules(cmd, h)
}

// siteOffline reports whether the maintenance_mode variable is set. The
// variable may hold a boolean, a number or a numeric string.
func siteOffline(variable func(name string, out any) (bool, error)) (bool, error) {
	var mode any
	found, err := variable("maintenance_mode", &mode)
	if err != nil || !found {
		return false, err
	}
	switch v := mode.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		return v != "" && v != "0", nil
	default:
		return false, nil
	}
}

// printModules lists every module row with the modules requiring it.
func printModules(cmd *cobra.Command, h *host.Host) error {
	ctx := cmd.Context()
	rows, err := h.Database().Modules(ctx)
	if err != nil {
		return err
	}

	deps := make(map[string][]string, len(rows))
	for _, row := range rows {
		rec, _, err := h.Module(ctx, row.Name)
		if err != nil {
			return err
		}
		deps[row.Name] = rec.Dependencies
	}
	dependents := manifest.Dependents(deps)

	table := uitable.New()
	table.MaxColWidth = 50
	table.Wrap = true
	table.RightAlign(3)
	table.RightAlign(4)
	table.AddRow("Name", "Type", "Status", "Schema", "Weight", "Required by")
	for _, row := range rows {
		status := "Disabled"
		if row.Enabled() {
			status = "Enabled"
		}
		table.AddRow(row.Name, row.Type, status, row.SchemaVersion, row.Weight, strings.Join(dependents[row.Name], ", "))
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}
