package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pwieczorek/newsrelay/internal/ingest"
)

// newRunCmd creates the 'run' subcommand: the whole pipeline in one process.
// With the memory queue and store providers this is a self-contained
// deployment; with pubsub/postgres it simply colocates the three stages.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs collector, ingest consumer, and dispatcher in one process",
		RunE:  runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	collector, err := buildCollector(appInstance)
	if err != nil {
		return err
	}
	consumer := ingest.New(appInstance.GetConsumer(), appInstance.GetStore(), appInstance.GetLogger())
	dispatcher := buildDispatcher(appInstance)

	return runServices(cmd.Context(), appInstance,
		collector.Run, consumer.Run, dispatcher.Run)
}
