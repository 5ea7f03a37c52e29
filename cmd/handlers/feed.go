package handlers

import (
	"context"
	"fmt"
	"strings"

	"kynews/internal/core"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewFeedCmd creates the feed command group for managing sources
func NewFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Manage ingestion sources",
		Long: `Add, list, and manage the feeds and listing pages the ingestion
pipeline polls.

A source is either an RSS/Atom feed (fetch mode "rss") or an HTML
listing page the scraper walks (fetch mode "scrape").`,
	}

	cmd.AddCommand(newFeedAddCmd())
	cmd.AddCommand(newFeedListCmd())
	cmd.AddCommand(newFeedEnableCmd("enable", true))
	cmd.AddCommand(newFeedEnableCmd("disable", false))
	cmd.AddCommand(newFeedRemoveCmd())

	return cmd
}

func newFeedAddCmd() *cobra.Command {
	var (
		name     string
		category string
		scope    string
		mode     string
		scraper  string
		state    string
		county   string
	)

	cmd := &cobra.Command{
		Use:   "add [url]",
		Short: "Add an ingestion source",
		Long: `Add a feed or listing page.

Examples:
  kynewsd feed add https://www.wkyt.com/rss --name "WKYT" --scope ky
  kynewsd feed add https://www.kentucky.com/news/ --name "Herald-Leader" \
    --mode scrape --scraper mcclatchy-article --county Fayette`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feed := &core.Feed{
				ID:            uuid.NewString(),
				Name:          name,
				Category:      category,
				URL:           args[0],
				StateCode:     strings.ToUpper(state),
				DefaultCounty: county,
				RegionScope:   scope,
				FetchMode:     mode,
				ScraperID:     scraper,
				Enabled:       true,
			}
			return runFeedAdd(cmd.Context(), feed)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name for the source (required)")
	cmd.Flags().StringVar(&category, "category", "news", "Topic category: news, sports, weather, ...")
	cmd.Flags().StringVar(&scope, "scope", core.ScopeKY, "Region scope: ky or national")
	cmd.Flags().StringVar(&mode, "mode", core.FetchModeRSS, "Fetch mode: rss or scrape")
	cmd.Flags().StringVar(&scraper, "scraper", "", "Scraper kind for scrape mode (empty for auto-detect)")
	cmd.Flags().StringVar(&state, "state", "KY", "Two-letter state code")
	cmd.Flags().StringVar(&county, "county", "", "County applied when classification finds none")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runFeedAdd(ctx context.Context, feed *core.Feed) error {
	switch feed.RegionScope {
	case core.ScopeKY, core.ScopeNational:
	default:
		return fmt.Errorf("scope must be %s or %s", core.ScopeKY, core.ScopeNational)
	}
	switch feed.FetchMode {
	case core.FetchModeRSS, core.FetchModeScrape:
	default:
		return fmt.Errorf("mode must be %s or %s", core.FetchModeRSS, core.FetchModeScrape)
	}
	if !strings.HasPrefix(feed.URL, "http://") && !strings.HasPrefix(feed.URL, "https://") {
		return fmt.Errorf("url must be absolute")
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Feeds().Upsert(ctx, feed); err != nil {
		return fmt.Errorf("failed to add feed: %w", err)
	}

	fmt.Printf("Added %s (%s)\n", feed.Name, feed.ID[:8])
	return nil
}

func newFeedListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedList(cmd.Context())
		},
	}
}

func runFeedList(ctx context.Context) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	feeds, err := db.Feeds().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list feeds: %w", err)
	}

	if len(feeds) == 0 {
		fmt.Println("No feeds configured. Add one with 'kynewsd feed add <url>'")
		return nil
	}

	for _, feed := range feeds {
		state := "enabled"
		if !feed.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-8s %-10s %-8s %-6s %s\n", feed.ID[:8], state, feed.FetchMode, feed.RegionScope, feed.Name)
		fmt.Printf("         %s\n", feed.URL)
		if feed.LastCheckedAt != nil {
			fmt.Printf("         last checked %s\n", feed.LastCheckedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}

func newFeedEnableCmd(verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [feed-id]",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedSetEnabled(cmd.Context(), args[0], enabled)
		},
	}
}

func runFeedSetEnabled(ctx context.Context, idPrefix string, enabled bool) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	feed, err := findFeedByPrefix(ctx, db.Feeds().List, idPrefix)
	if err != nil {
		return err
	}

	feed.Enabled = enabled
	if err := db.Feeds().Upsert(ctx, feed); err != nil {
		return fmt.Errorf("failed to update feed: %w", err)
	}

	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Printf("%s %s\n", feed.Name, state)
	return nil
}

func newFeedRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [feed-id]",
		Short: "Remove a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedRemove(cmd.Context(), args[0])
		},
	}
}

func runFeedRemove(ctx context.Context, idPrefix string) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	feed, err := findFeedByPrefix(ctx, db.Feeds().List, idPrefix)
	if err != nil {
		return err
	}

	if err := db.Feeds().Delete(ctx, feed.ID); err != nil {
		return fmt.Errorf("failed to remove feed: %w", err)
	}

	fmt.Printf("Removed %s\n", feed.Name)
	return nil
}

// findFeedByPrefix resolves a feed from an ID prefix, erroring on
// ambiguity so a typo never hits the wrong source.
func findFeedByPrefix(ctx context.Context, list func(context.Context) ([]core.Feed, error), idPrefix string) (*core.Feed, error) {
	feeds, err := list(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	var matches []core.Feed
	for _, feed := range feeds {
		if strings.HasPrefix(feed.ID, idPrefix) {
			matches = append(matches, feed)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no feed matches %q", idPrefix)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%d feeds match %q, use a longer prefix", len(matches), idPrefix)
	}
}
