package commands

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/roasbeef/p4review/internal/queue"
)

var (
	triggerUser      string
	triggerOldChange string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Feed and inspect the task queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <type> <id>",
	Short: "Queue a trigger event",
	Long: `Queue a trigger event the way the Perforce trigger script does.
Type is one of shelve, commit, change, review, comment, job, user, group.`,
	Args: cobra.ExactArgs(2),
	RunE: runQueueAdd,
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show task counts by status",
	Args:  cobra.NoArgs,
	RunE:  runQueueStatus,
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run the worker once and wait for it to finish",
	Args:  cobra.NoArgs,
	RunE:  runQueueDrain,
}

func init() {
	queueAddCmd.Flags().StringVar(&triggerUser, "trigger-user", "",
		"User that fired the trigger")
	queueAddCmd.Flags().StringVar(&triggerOldChange, "old-change", "",
		"Original change number of a renumbered commit")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueDrainCmd)
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	typ, err := queue.ParseTaskType(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("type", string(typ))
	form.Set("id", args[1])
	if triggerUser != "" {
		form.Set("user", triggerUser)
	}
	if triggerOldChange != "" {
		form.Set("oldChange", triggerOldChange)
	}

	var resp struct {
		Task int64 `json:"task"`
	}
	if err := client.PostForm(ctx, "/queue/add", form, &resp); err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp)
	}
	fmt.Printf("Queued %s %s as task %d\n", typ, args[1], resp.Task)

	return nil
}

func runQueueStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	var stats queue.Stats
	if err := client.Get(ctx, "/queue/status", nil, &stats); err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(stats)
	}

	fmt.Printf("pending=%d running=%d done=%d failed=%d\n",
		stats.Pending, stats.Running, stats.Done, stats.Failed)
	if stats.OldestPending != nil {
		fmt.Printf("oldest pending: %s\n",
			stats.OldestPending.Local().Format("2006-01-02 15:04:05"))
	}

	return nil
}

func runQueueDrain(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	var resp struct {
		Processed int `json:"processed"`
		Failed    int `json:"failed"`
	}
	if err := client.Post(ctx, "/queue/worker", nil, &resp); err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp)
	}
	fmt.Printf("Processed %d tasks, %d failed\n", resp.Processed,
		resp.Failed)

	return nil
}
