package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/asaidimu/go-dataloader/internal/ui"
	"github.com/asaidimu/go-dataloader/taskqueue"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newEnqueueCommand(a *app) *cobra.Command {
	var (
		body        string
		delay       time.Duration
		dedupID     string
		generateID  bool
		destination string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish a JSON task to the configured QStash queue",
		Example: `  dataloader enqueue --body '{"userId":"a1"}' --delay 30s
  dataloader enqueue --body @task.json --dedup-id job-42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readArgument(body)
			if err != nil {
				return err
			}
			var payload json.RawMessage
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("task body must be JSON: %w", err)
			}

			cfg := a.cfg.Queue
			if destination != "" {
				cfg.URL = destination
			}
			queue, err := taskqueue.New[json.RawMessage](cfg, nil, a.logger)
			if err != nil {
				return err
			}

			if dedupID == "" && generateID {
				dedupID = uuid.NewString()
			}
			receipt, err := queue.Create(cmd.Context(), taskqueue.Task[json.RawMessage]{
				Body:            payload,
				Delay:           delay,
				DeduplicationID: dedupID,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if receipt.Deduplicated {
				ui.PrintInfo(out, "Message %s was already queued", receipt.MessageID)
				return nil
			}
			ui.PrintSuccess(out, "Queued message %s", receipt.MessageID)
			if dedupID != "" {
				ui.PrintInfo(out, "Deduplication id: %s", dedupID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&body, "body", "b", "{}", "task body as JSON, or @path to a file holding it")
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay before delivery, e.g. 30s or 5m")
	cmd.Flags().StringVar(&dedupID, "dedup-id", "", "deduplication id")
	cmd.Flags().BoolVar(&generateID, "generate-dedup-id", false, "use a random deduplication id when --dedup-id is empty")
	cmd.Flags().StringVar(&destination, "url", "", "destination URL (overrides queue.url)")
	return cmd
}
