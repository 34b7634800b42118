package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/siteinstaller"
)

type userPasswordOptions struct {
	user     string
	password string
}

// NewUserPasswordCommand creates the user:password command
func NewUserPasswordCommand(global *globalOptions) *cobra.Command {
	opts := &userPasswordOptions{}
	cmd := &cobra.Command{
		Use:     "user:password",
		Aliases: []string{"upwd"},
		Short:   "Set the password of an existing account",
		Long: `Set the password of an account on an installed site. The account is named
by uid, user name or e-mail address. A random password is generated unless
--password names one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserPassword(cmd, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "uid, name or e-mail address of the account")
	cmd.Flags().StringVarP(&opts.password, "password", "p", generatedPassword, "new password")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runUserPassword(cmd *cobra.Command, global *globalOptions, opts *userPasswordOptions) error {
	cfg, err := global.load()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	h, stager := newHost(cfg, logger)
	defer h.Close()

	ctx := cmd.Context()
	if err := stager.EnsureLevel(ctx, siteinstaller.LevelDatabase); err != nil {
		return err
	}
	password := resolvePassword(opts.password)
	_, name, err := h.SetPassword(ctx, opts.user, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Password for user '%s' is: %s\n", name, password)
	return nil
}
