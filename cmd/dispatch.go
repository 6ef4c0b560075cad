package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pwieczorek/newsrelay/internal/dispatch"
)

// newDispatchCmd creates the 'dispatch' subcommand: the announcement loop
// that sends stored articles to the channel.
func newDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Announces stored articles on the notification channel",
		Long: `Polls the store for pending articles and announces each one on the
configured channel, with bounded retries. Every article ends up either
delivered or marked as failed.`,
		RunE: runDispatchCommand,
	}
}

func runDispatchCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	d := buildDispatcher(appInstance)
	return runServices(cmd.Context(), appInstance, d.Run)
}

func buildDispatcher(a App) *dispatch.Dispatcher {
	cfg := a.GetConfig()
	return dispatch.New(a.GetStore(), a.GetNotifier(), dispatch.Config{
		PollInterval: cfg.Dispatch.PollInterval,
		BatchSize:    cfg.Dispatch.BatchSize,
		SendDelay:    cfg.Telegram.SendDelay,
		Retry:        cfg.Dispatch.Retry.Policy(),
	}, a.GetLogger())
}
