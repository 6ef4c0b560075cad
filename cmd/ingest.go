package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pwieczorek/newsrelay/internal/ingest"
)

// newIngestCmd creates the 'ingest' subcommand: the queue consumer that
// persists discovered articles exactly once.
func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Consumes the article queue and persists new articles",
		Long: `Receives article drafts from the queue and upserts them into the
store. Duplicate drafts are acknowledged and dropped; store failures cause
redelivery.`,
		RunE: runIngestCommand,
	}
}

func runIngestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	consumer := ingest.New(appInstance.GetConsumer(), appInstance.GetStore(), appInstance.GetLogger())
	return runServices(cmd.Context(), appInstance, consumer.Run)
}
