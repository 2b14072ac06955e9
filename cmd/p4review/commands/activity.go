package commands

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roasbeef/p4review/internal/activity"
)

var (
	activityReview int64
	activityMax    int
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the activity stream",
	Args:  cobra.NoArgs,
	RunE:  runActivity,
}

func init() {
	activityCmd.Flags().Int64Var(&activityReview, "review", 0,
		"Only show activity of this review")
	activityCmd.Flags().IntVar(&activityMax, "max", 0,
		"Maximum number of entries")
}

func runActivity(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	path := "/activity"
	if activityReview > 0 {
		path = fmt.Sprintf("/reviews/%d/activity", activityReview)
	}
	query := url.Values{}
	if activityMax > 0 {
		query.Set("max", strconv.Itoa(activityMax))
	}

	var resp struct {
		Activity []activity.Entry `json:"activity"`
	}
	if err := client.Get(ctx, path, query, &resp); err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp.Activity)
	}
	for _, e := range resp.Activity {
		fmt.Printf("%s  %s %s %s\n",
			e.Time.Local().Format("2006-01-02 15:04"), e.User,
			e.Action, e.Target)
	}

	return nil
}
