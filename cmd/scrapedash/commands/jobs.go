package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/scrapedash/dashboard"
	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/logger"
)

// oneShot runs a session without a push channel, waits for the snapshot,
// calls fn and stops the session.
func oneShot(cmd *cobra.Command, fn func(ctx context.Context, s *dashboard.Session) error) error {
	c, err := LoadConfig()
	if err != nil {
		return err
	}
	verbosity, _ := cmd.Flags().GetCount("verbose")

	client, err := newClient(c, verbosity)
	if err != nil {
		return err
	}

	view := NewTerminalView(cmd.OutOrStdout(), verbosity)
	opts := dashboard.Options{
		Backend:  client,
		Notifier: view,
		PageSize: c.Dashboard.PageSize,
		Quota:    c.Dashboard.ActiveQuota,
		Logger:   logger.ComponentLogger("dashboard"),
	}
	session := dashboard.New(opts)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()
	defer func() {
		session.Stop()
		<-done
	}()

	select {
	case <-session.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := session.Err(); err != nil {
		return errors.Wrap(err, "failed to load jobs")
	}

	return fn(ctx, session)
}

// LsCmd prints one page of jobs
var LsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Print one page of jobs",
	Long: `Print one page of jobs from the backend's current listing.

Pages are numbered from 1 and hold dashboard.page_size jobs each.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		if page < 1 {
			return errors.Newf("--page must be at least 1, got %d", page)
		}

		return oneShot(cmd, func(ctx context.Context, s *dashboard.Session) error {
			view, err := s.View(ctx)
			if err != nil {
				return err
			}
			if len(view.Pages) > 0 || page > 1 {
				if err := s.SelectPage(ctx, page-1); err != nil {
					if errors.Is(err, errors.ErrPageOutOfRange) {
						return errors.WithHintf(err, "there are %d page(s)", len(view.Pages))
					}
					return err
				}
				if view, err = s.View(ctx); err != nil {
					return err
				}
			}
			verbosity, _ := cmd.Flags().GetCount("verbose")
			NewTerminalView(cmd.OutOrStdout(), verbosity).RenderPage(view)
			return nil
		})
	},
}

// SubmitCmd submits one batch of URLs
var SubmitCmd = &cobra.Command{
	Use:   "submit <url>...",
	Short: "Submit URLs for processing",
	Long: `Submit one batch of URLs. Every URL in the batch shares one schedule.

The batch is refused locally when dashboard.active_quota jobs are still
downloading or waiting to be parsed.

Examples:
  scrapedash submit https://go.dev https://pkg.go.dev
  scrapedash submit https://go.dev --at 2026-10-17T18:00:00Z`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at := time.Now()
		if raw, _ := cmd.Flags().GetString("at"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return errors.WithHint(errors.Wrap(err, "invalid --at"), "use RFC 3339, e.g. 2026-10-17T18:00:00Z")
			}
			at = parsed
		}

		return oneShot(cmd, func(ctx context.Context, s *dashboard.Session) error {
			created, err := s.Submit(ctx, args, at)
			if err != nil {
				return err
			}
			for _, rec := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", rec.ID, rec.Status, rec.URL)
			}
			return nil
		})
	},
}

// CancelCmd cancels one job by id or unique id prefix
var CancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a job",
	Long: `Cancel a job that is still in progress. A unique prefix of the id is enough.

Jobs that already finished, failed or were cancelled are refused locally.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, s *dashboard.Session) error {
			records, err := s.Records(ctx)
			if err != nil {
				return err
			}
			id, err := resolveID(records, args[0])
			if err != nil {
				return err
			}
			return s.Cancel(ctx, id)
		})
	},
}

func init() {
	LsCmd.Flags().IntP("page", "p", 1, "Page to print (1-based)")
	SubmitCmd.Flags().String("at", "", "Schedule parsing at this RFC 3339 time (default: now)")
}
