package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/config"
	"github.com/xkilldash9x/autologin-cli/internal/login"
	"github.com/xkilldash9x/autologin-cli/internal/notify"
	"github.com/xkilldash9x/autologin-cli/internal/observability"
	"github.com/xkilldash9x/autologin-cli/internal/service"
)

// Swapped out in tests.
var (
	componentFactory = service.NewComponentFactory()
	newNotifier      = func(cfg config.NotifierConfig, logger *zap.Logger) notify.Notifier {
		return notify.New(cfg, logger)
	}
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Attempt a login for every configured account, one after another",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Flags override the config file and the environment.
			bindings := map[string]string{
				"browser.headless":  "headless",
				"retry.max_retries": "max-retries",
				"target.login_url":  "login-url",
			}
			for key, flag := range bindings {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().Bool("headless", true, "run the browser without a window")
	runCmd.Flags().Int("max-retries", 2, "retries per account after the first attempt")
	runCmd.Flags().String("login-url", "", "absolute URL of the login page")
	return runCmd
}

func runBatch(ctx context.Context, v *viper.Viper, out io.Writer) error {
	logger := observability.GetLogger()

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	notifier := newNotifier(cfg.Notifier, logger)

	creds, err := prepare(cfg)
	if err != nil {
		logger.Error("Run aborted during initialization", zap.Error(err))
		notifier.SendMessage(ctx, login.InitFailureMessage(err))
		return err
	}

	components, err := componentFactory.Create(ctx, cfg, notifier, logger)
	if err != nil {
		err = fmt.Errorf("failed to initialize run components: %w", err)
		notifier.SendMessage(ctx, login.InitFailureMessage(err))
		return err
	}

	logger.Info("Starting auto-login run",
		zap.Int("accounts", len(creds)),
		zap.String("login_url", cfg.Target.LoginURL),
		zap.Int("max_retries", cfg.Retry.MaxRetries),
	)
	summary := components.Batch.Run(ctx, creds)
	printSummary(out, summary)

	if summary.Status() != login.StatusSuccess {
		return errRunFailed
	}
	return nil
}

// prepare rejects the run before any browser work. Both failure kinds are
// reported as CONFIG_ERROR.
func prepare(cfg *config.Config) ([]login.Credential, error) {
	if err := cfg.Validate(); err != nil {
		return nil, login.NewFault(login.CodeConfig, "", "invalid configuration: "+err.Error(), err)
	}
	return login.ParseCredentials(cfg.Accounts)
}

func printSummary(w io.Writer, s login.BatchSummary) {
	okStatus := color.New(color.FgGreen, color.Bold).SprintFunc()
	badStatus := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(w, "\nRun %s\n", s.RunID)
	for i, o := range s.Outcomes {
		status := okStatus(o.Status)
		if !o.Succeeded() {
			status = badStatus(o.Status)
		}
		fmt.Fprintf(w, "%3d. %-32s %s  %s", i+1, login.MaskIdentity(o.Identity), status, o.Reason)
		if o.RetriesUsed > 0 {
			fmt.Fprintf(w, " %s", dim(fmt.Sprintf("(retries: %d)", o.RetriesUsed)))
		}
		fmt.Fprintln(w)
	}

	total := fmt.Sprintf("%d succeeded, %d failed", s.Succeeded(), s.Failed())
	if s.Status() == login.StatusSuccess {
		fmt.Fprintln(w, okStatus(total))
	} else {
		fmt.Fprintln(w, badStatus(total))
	}
}
