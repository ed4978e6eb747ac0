package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"spendwatch/internal/cli"
	"spendwatch/internal/core"
)

// appKey carries the wired App from PersistentPreRunE to subcommands.
type appKey struct{}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "analysisctl",
		Short:         "Operate the spending analysis pipeline",
		Long:          "analysisctl runs analysis batches, reaps stale runs and inspects notifications against the configured backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			logger := cli.SetupLogger(cfg)
			app, err := cli.BuildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app := appFrom(cmd); app != nil {
				return app.Close()
			}
			return nil
		},
	}

	root.AddCommand(newRunCmd(), newReapCmd(), newNotificationsCmd())
	return root
}

func appFrom(cmd *cobra.Command) *cli.App {
	app, _ := cmd.Context().Value(appKey{}).(*cli.App)
	return app
}

func newRunCmd() *cobra.Command {
	var (
		days     int
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one analysis batch for every active user",
		Example: `  analysisctl run --days 14
  analysisctl run --from 2024-05-01 --to 2024-05-14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			start, end, err := resolvePeriod(app.Ledger.Now(), days, app.Config.AnalysisWindowDays, from, to)
			if err != nil {
				return err
			}
			summary, err := app.Run(cmd.Context(), start, end)
			printSummary(cmd.OutOrStdout(), summary.PeriodStart, summary.PeriodEnd, [][2]string{
				{"processed", fmt.Sprint(summary.TotalProcessed)},
				{"completed", fmt.Sprint(summary.TotalCompleted)},
				{"skipped", fmt.Sprint(summary.TotalSkipped)},
				{"failed", fmt.Sprint(summary.TotalFailed)},
				{"pages", fmt.Sprint(summary.Pages)},
				{"iteration limit hit", fmt.Sprint(summary.IterationLimitHit)},
				{"duration", summary.Duration.Round(time.Millisecond).String()},
			})
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "analyse the last N full days (defaults to ANALYSIS_WINDOW_DAYS)")
	cmd.Flags().StringVar(&from, "from", "", "period start, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "period end, YYYY-MM-DD (inclusive)")
	cmd.MarkFlagsRequiredTogether("from", "to")
	cmd.MarkFlagsMutuallyExclusive("days", "from")
	return cmd
}

func newReapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Fail analysis runs stuck in RUNNING past the stale threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := appFrom(cmd).Reaper.ReapStale(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "threshold %s: found %d, reaped %d, failed %d\n",
				summary.Threshold.Format(time.RFC3339), summary.Found, summary.Reaped, summary.Failed)
			return nil
		},
	}
}

func newNotificationsCmd() *cobra.Command {
	var (
		userID     string
		unreadOnly bool
		markRead   string
	)
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List a user's notifications or mark one as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := appFrom(cmd).Store
			if markRead != "" {
				if err := store.MarkNotificationRead(cmd.Context(), markRead); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "marked %s as read\n", markRead)
				return nil
			}
			if userID == "" {
				return fmt.Errorf("--user is required when listing notifications")
			}
			notes, err := store.ListNotifications(cmd.Context(), userID, unreadOnly)
			if err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), notes)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to list notifications for")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only list unread notifications")
	cmd.Flags().StringVar(&markRead, "mark-read", "", "notification id to mark as read")
	return cmd
}

// resolvePeriod picks the analysis window from --from/--to, --days, or the
// configured default (days == 0), in that order.
func resolvePeriod(now time.Time, days, defaultDays int, from, to string) (time.Time, time.Time, error) {
	if from != "" || to != "" {
		start, err := core.ParseDate(from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		end, err := core.ParseDate(to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		if err := core.ValidatePeriod(start, end); err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start, end, nil
	}
	if days < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("--days must be positive")
	}
	if days == 0 {
		days = defaultDays
	}
	start, end := cli.AnalysisWindow(now, days)
	return start, end, nil
}

func printSummary(w io.Writer, start, end time.Time, rows [][2]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "period\t%s .. %s\n", core.FormatDate(start), core.FormatDate(end))
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	tw.Flush()
}

func printNotifications(w io.Writer, notes []core.Notification) {
	if len(notes) == 0 {
		fmt.Fprintln(w, "no notifications")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSEVERITY\tREAD\tCREATED\tTITLE")
	for _, n := range notes {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", n.ID, n.Severity, n.IsRead, n.CreatedAt.Format(time.DateTime), n.Title)
	}
	tw.Flush()
}
