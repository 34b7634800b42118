package cmd

import (
	"context"
	"crypto/rand"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/siteinstaller"
	"github.com/GoCodeAlone/siteinstaller/host"
)

const (
	generatedPasswordLength = 10
	// generatedPassword is the flag value that asks for a random password.
	generatedPassword = "generated"
)

type installOptions struct {
	profile  string
	username string
	password string
	mail     string
}

// NewInstallCommand creates the site:install command
func NewInstallCommand(global *globalOptions) *cobra.Command {
	opts := &installOptions{}
	cmd := &cobra.Command{
		Use:     "site:install",
		Aliases: []string{"si"},
		Short:   "Install a site from an install profile",
		Long: `Install a fresh site from an install profile. The database named in the
settings file must be empty. The administrator password is generated unless
--password names one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "", "install profile to use")
	cmd.Flags().StringVarP(&opts.username, "username", "u", "admin", "administrator account name")
	cmd.Flags().StringVar(&opts.password, "password", generatedPassword, "administrator password")
	cmd.Flags().StringVar(&opts.mail, "mail", "admin@example.com", "administrator e-mail address")
	_ = cmd.MarkFlagRequired("profile")

	return cmd
}

func runInstall(cmd *cobra.Command, global *globalOptions, opts *installOptions) error {
	cfg, err := global.load()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	h, stager := newHost(cfg, logger)
	defer h.Close()

	out := cmd.OutOrStdout()
	subject := siteinstaller.NewObserverRegistry(logger)
	progress := siteinstaller.NewFunctionalObserver("cli-progress", func(_ context.Context, event cloudevents.Event) error {
		var data siteinstaller.ModuleEventData
		if err := event.DataAs(&data); err != nil {
			return err
		}
		fmt.Fprintf(out, "Installed %s\n", data.Module)
		return nil
	})
	if err := subject.RegisterObserver(progress, siteinstaller.EventTypeModuleInstalled); err != nil {
		return err
	}

	installer := siteinstaller.NewSiteInstaller(h, stager, logger, siteinstaller.WithSubject(subject))
	report, err := installer.Install(cmd.Context(), opts.profile)
	if err != nil {
		return err
	}

	password := resolvePassword(opts.password)
	account := host.Account{Name: opts.username, Mail: opts.mail, Password: password}
	if err := h.SetAdminAccount(cmd.Context(), account); err != nil {
		return err
	}

	fmt.Fprintf(out, "Installed profile %s with %d modules\n", report.Profile, len(report.Installed()))
	fmt.Fprintf(out, "Password for user '%s' is: %s\n", opts.username, password)
	return nil
}

// resolvePassword returns password, or a random one when password is empty
// or the literal "generated".
func resolvePassword(password string) string {
	if password == "" || password == generatedPassword {
		return generatePassword()
	}
	return password
}

// generatePassword returns a random password of base32 characters.
func generatePassword() string {
	return rand.Text()[:generatedPasswordLength]
}
