package commands

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roasbeef/p4review/internal/review"
)

// reviewSummary mirrors the list entries served on GET /reviews.
type reviewSummary struct {
	ID          int64  `json:"id"`
	Author      string `json:"author"`
	UpVotes     int    `json:"upVotes"`
	DownVotes   int    `json:"downVotes"`
	Description string `json:"description"`
	State       string `json:"state"`
	TestStatus  string `json:"testStatus"`
	CreateDate  string `json:"createDate"`
}

type reviewDetail struct {
	review.Review

	Transitions map[string]string `json:"transitions,omitempty"`
}

var (
	listState    string
	listAuthor   string
	listMax      int
	addReviewers []string
	addDesc      string
	voteVersion  int
)

var reviewsCmd = &cobra.Command{
	Use:     "reviews",
	Aliases: []string{"review"},
	Short:   "List and act on reviews",
}

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reviews, newest first",
	Args:  cobra.NoArgs,
	RunE:  runReviewsList,
}

var reviewsShowCmd = &cobra.Command{
	Use:   "show <review-id>",
	Short: "Show a review with its participants and versions",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewsShow,
}

var reviewsAddCmd = &cobra.Command{
	Use:   "add <change>",
	Short: "Request a review of a change",
	Long: `Request a review of a pending or committed change. The change must be
owned by --user.`,
	Args: cobra.ExactArgs(1),
	RunE: runReviewsAdd,
}

var reviewsTransitionCmd = &cobra.Command{
	Use:   "transition <review-id> <state>",
	Short: "Move a review to another state",
	Long: `Move a review to another state. State is one of needsReview,
needsRevision, approved, approved:commit, rejected or archived.`,
	Args: cobra.ExactArgs(2),
	RunE: runReviewsTransition,
}

var reviewsVoteCmd = &cobra.Command{
	Use:       "vote <review-id> <up|down|clear>",
	Short:     "Vote on a review",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"up", "down", "clear"},
	RunE:      runReviewsVote,
}

func init() {
	reviewsListCmd.Flags().StringVar(&listState, "state", "",
		"Only list reviews in this state")
	reviewsListCmd.Flags().StringVar(&listAuthor, "author", "",
		"Only list reviews by this author")
	reviewsListCmd.Flags().IntVar(&listMax, "max", 0,
		"Maximum number of reviews (0 for the server default)")

	reviewsAddCmd.Flags().StringSliceVarP(&addReviewers, "reviewer", "r",
		nil, "Reviewer to add (repeatable)")
	reviewsAddCmd.Flags().StringVarP(&addDesc, "description", "d", "",
		"Review description (default: the change description)")

	reviewsVoteCmd.Flags().IntVar(&voteVersion, "version", 0,
		"Version voted on (default: head)")

	reviewsCmd.AddCommand(reviewsListCmd)
	reviewsCmd.AddCommand(reviewsShowCmd)
	reviewsCmd.AddCommand(reviewsAddCmd)
	reviewsCmd.AddCommand(reviewsTransitionCmd)
	reviewsCmd.AddCommand(reviewsVoteCmd)
}

func runReviewsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	query := url.Values{}
	if listState != "" {
		query.Set("state", listState)
	}
	if listAuthor != "" {
		query.Set("author", listAuthor)
	}
	if listMax > 0 {
		query.Set("max", strconv.Itoa(listMax))
	}

	var resp struct {
		Reviews []reviewSummary `json:"reviews"`
	}
	if err := client.Get(ctx, "/reviews", query, &resp); err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp.Reviews)
	}

	if len(resp.Reviews) == 0 {
		fmt.Println("No reviews.")
		return nil
	}
	for _, r := range resp.Reviews {
		fmt.Println(formatSummary(r))
	}

	return nil
}

func formatSummary(r reviewSummary) string {
	line := fmt.Sprintf("%-6d %-14s %-12s +%d/-%d  %s", r.ID, r.State,
		r.Author, r.UpVotes, r.DownVotes, stripTags(r.Description))
	if r.TestStatus != "" {
		line += fmt.Sprintf(" [tests %s]", r.TestStatus)
	}

	return line
}

// stripTags drops the inline markup of a rendered description.
func stripTags(s string) string {
	var (
		b     strings.Builder
		inTag bool
	)
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	return b.String()
}

func runReviewsShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	var resp struct {
		Review reviewDetail `json:"review"`
	}
	err = client.Get(ctx, fmt.Sprintf("/reviews/%d", id), nil, &resp)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp.Review)
	}

	fmt.Print(formatDetail(&resp.Review))
	return nil
}

func formatDetail(d *reviewDetail) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review %d by %s\n", d.ID, d.Author)
	fmt.Fprintf(&b, "State:    %s\n", d.State)
	if d.TestStatus != "" {
		fmt.Fprintf(&b, "Tests:    %s\n", d.TestStatus)
	}
	if d.DeployStatus != "" {
		fmt.Fprintf(&b, "Deploy:   %s\n", d.DeployStatus)
	}
	fmt.Fprintf(&b, "Changes:  %v\n", d.Changes)
	if len(d.Commits) > 0 {
		fmt.Fprintf(&b, "Commits:  %v\n", d.Commits)
	}

	users := make([]string, 0, len(d.Participants))
	for u := range d.Participants {
		users = append(users, u)
	}
	sort.Strings(users)

	b.WriteString("\nParticipants:\n")
	for _, u := range users {
		p := d.Participants[u]
		fmt.Fprintf(&b, "  %s", u)
		if p.Required {
			b.WriteString(" (required)")
		}
		if p.Vote != nil {
			fmt.Fprintf(&b, " vote=%+d@v%d", p.Vote.Value, p.Vote.Version)
			if p.Vote.IsStale {
				b.WriteString(" stale")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\nVersions:\n")
	for i, v := range d.Versions {
		kind := "committed"
		if v.Pending {
			kind = "shelved"
		}
		fmt.Fprintf(&b, "  #%d change %d by %s (%s)\n", i+1, v.Change,
			v.User, kind)
	}

	if len(d.Transitions) > 0 {
		states := make([]string, 0, len(d.Transitions))
		for s := range d.Transitions {
			states = append(states, s)
		}
		sort.Strings(states)
		fmt.Fprintf(&b, "\nTransitions: %s\n", strings.Join(states, ", "))
	}

	fmt.Fprintf(&b, "\n%s\n", d.Description)

	return b.String()
}

func runReviewsAdd(cmd *cobra.Command, args []string) error {
	change, err := parseID(args[0])
	if err != nil {
		return err
	}
	if userName == "" {
		return fmt.Errorf("no user specified; use --user or set P4USER")
	}

	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	req := map[string]any{"change": change}
	if addDesc != "" {
		req["description"] = addDesc
	}
	if len(addReviewers) > 0 {
		req["reviewers"] = addReviewers
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := client.Post(ctx, "/reviews/add", req, &resp); err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp)
	}
	fmt.Printf("Review %d requested for change %d\n", resp.ID, change)

	return nil
}

func runReviewsTransition(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	state := review.State(args[1])
	if !state.Valid() {
		return fmt.Errorf("%q is not a review state", args[1])
	}

	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	var resp struct {
		Review reviewDetail `json:"review"`
	}
	err = client.Post(ctx, fmt.Sprintf("/reviews/%d/transition", id),
		map[string]string{"state": string(state)}, &resp)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp.Review)
	}
	fmt.Printf("Review %d is now %s\n", id, resp.Review.State)

	return nil
}

func runReviewsVote(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	switch args[1] {
	case "up", "down", "clear":
	default:
		return fmt.Errorf("vote must be up, down or clear")
	}

	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	var body any
	if voteVersion > 0 {
		body = map[string]int{"version": voteVersion}
	}

	var resp struct {
		UpVotes   int `json:"upVotes"`
		DownVotes int `json:"downVotes"`
	}
	err = client.Post(ctx, fmt.Sprintf("/reviews/%d/vote/%s", id, args[1]),
		body, &resp)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp)
	}
	fmt.Printf("Review %d: +%d/-%d\n", id, resp.UpVotes, resp.DownVotes)

	return nil
}
