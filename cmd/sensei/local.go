package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/chukwu07/savings-sensei/internal/config"
	"github.com/chukwu07/savings-sensei/pkg/offline"
	"github.com/spf13/cobra"
)

var (
	localUser       string
	localJSONOutput bool
	queueClearYes   bool
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Inspect and reconcile the on-device store",
	Long:  "Run reconciliation cycles and inspect the mutation queue of a local store without the app.",
}

var localSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation cycle",
	Args:  cobra.NoArgs,
	RunE:  runLocalSync,
}

var localStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending mutations and pull watermarks",
	Args:  cobra.NoArgs,
	RunE:  runLocalStatus,
}

var localWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the local store in sync until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runLocalWatch,
}

var localQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the mutation queue",
}

var localQueueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued mutations in replay order",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var localQueueCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Collapse redundant queued mutations",
	Args:  cobra.NoArgs,
	RunE:  runQueueCompact,
}

var localQueueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every queued mutation without sending it",
	Args:  cobra.NoArgs,
	RunE:  runQueueClear,
}

func init() {
	localCmd.PersistentFlags().StringVar(&localUser, "user", "",
		"User ID to reconcile (overrides client.user_id and SENSEI_USER_ID)")
	localCmd.PersistentFlags().BoolVar(&localJSONOutput, "json", false,
		"Output in JSON format")
	localQueueClearCmd.Flags().BoolVar(&queueClearYes, "yes", false,
		"Confirm dropping unsent changes")

	localQueueCmd.AddCommand(localQueueListCmd)
	localQueueCmd.AddCommand(localQueueCompactCmd)
	localQueueCmd.AddCommand(localQueueClearCmd)

	localCmd.AddCommand(localSyncCmd)
	localCmd.AddCommand(localStatusCmd)
	localCmd.AddCommand(localWatchCmd)
	localCmd.AddCommand(localQueueCmd)
}

// openClient builds an offline client from the client config section.
func openClient(cmd *cobra.Command, autoSync bool) (*offline.Client, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	userID := localUser
	if userID == "" {
		userID = cfg.Client.UserID
	}

	client, err := offline.New(offline.Config{
		LocalPath:          cfg.Client.LocalPath,
		RemoteURL:          cfg.Client.RemoteURL,
		Token:              cfg.Client.Token,
		SyncInterval:       time.Duration(cfg.Client.SyncInterval),
		ProbeInterval:      time.Duration(cfg.Client.ProbeInterval),
		CompactInterval:    time.Duration(cfg.Client.CompactInterval),
		QueueCapacity:      cfg.Client.QueueCapacity,
		AutoSync:           autoSync,
		PruneRemoteDeletes: cfg.Client.PruneRemoteDeletes,
	},
		offline.WithIdentity(offline.StaticIdentity(userID)),
		offline.WithLogger(newLogger(cfg.Log, cmd.ErrOrStderr())),
	)
	if err != nil {
		return nil, "", err
	}
	return client, userID, nil
}

func runLocalSync(cmd *cobra.Command, args []string) error {
	client, userID, err := openClient(cmd, false)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	if userID == "" {
		return errors.New("--user is required")
	}

	stats, err := client.PerformFullSync(cmd.Context(), userID)
	if err != nil {
		return err
	}
	pending, err := client.PendingSyncCount(cmd.Context())
	if err != nil {
		return err
	}

	if localJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"stats":   stats,
			"pending": pending,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pulled %d, skipped %d, pushed %d, failed %d, deferred %d in %s\n",
		stats.Pulled, stats.PullSkipped, stats.Pushed, stats.PushFailed, stats.Deferred,
		stats.Duration.Round(time.Millisecond))
	if stats.PullErrors > 0 {
		fmt.Fprintf(out, "%d table(s) could not be pulled\n", stats.PullErrors)
	}
	fmt.Fprintf(out, "%d change(s) pending\n", pending)
	return nil
}

func runLocalStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, _, err := openClient(cmd, false)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	pending, err := client.PendingSyncCount(ctx)
	if err != nil {
		return err
	}
	marks, err := client.Watermarks(ctx)
	if err != nil {
		return err
	}
	compactedAt, compacted, err := client.LastCompactedAt(ctx)
	if err != nil {
		return err
	}

	if localJSONOutput {
		status := map[string]any{
			"pending":    pending,
			"watermarks": marks,
		}
		if compacted {
			status["last_compacted_at"] = compactedAt
		}
		return printJSON(cmd.OutOrStdout(), status)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pending changes: %d\n", pending)
	if compacted {
		fmt.Fprintf(out, "Last compacted:  %s\n", compactedAt.Format(time.RFC3339))
	}
	if len(marks) == 0 {
		fmt.Fprintln(out, "No table has been pulled yet.")
		return nil
	}
	w := newTabWriter(out)
	fmt.Fprintln(w, "TABLE\tLAST SYNC")
	for _, m := range marks {
		fmt.Fprintf(w, "%s\t%s\n", m.Table, m.LastSync.Format(time.RFC3339))
	}
	return w.Flush()
}

func runLocalWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	client, userID, err := openClient(cmd, true)
	if err != nil {
		return err
	}
	if userID == "" {
		client.Shutdown()
		return errors.New("--user is required")
	}

	if err := client.Start(ctx); err != nil {
		client.Shutdown()
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Watching for changes as %s; press Ctrl+C to stop\n", userID)

	<-ctx.Done()
	return client.Shutdown()
}

func runQueueList(cmd *cobra.Command, args []string) error {
	client, _, err := openClient(cmd, false)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	entries, err := client.QueuedMutations(cmd.Context())
	if err != nil {
		return err
	}

	if localJSONOutput {
		if entries == nil {
			entries = []offline.Mutation{}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"entries": entries,
			"total":   len(entries),
		})
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "SEQ\tTABLE\tID\tOP\tQUEUED\tATTEMPTS\tLAST ERROR")
	for _, m := range entries {
		lastErr := m.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			m.Sequence,
			m.Table,
			m.EntityID,
			m.Operation,
			m.EnqueuedAt.Format("2006-01-02 15:04:05"),
			m.Attempts,
			lastErr,
		)
	}
	return w.Flush()
}

func runQueueCompact(cmd *cobra.Command, args []string) error {
	client, _, err := openClient(cmd, false)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	result, err := client.CompactQueue(cmd.Context())
	if err != nil {
		return err
	}

	if localJSONOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Compacted queue: %d -> %d entries (%d removed, %d rewritten)\n",
		result.Before, result.After, result.Removed, result.Rewritten)
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	if !queueClearYes {
		return errors.New("refusing to drop unsent changes without --yes")
	}

	client, _, err := openClient(cmd, false)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	n, err := client.ResetQueue(cmd.Context())
	if err != nil {
		return err
	}

	if localJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"dropped": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d queued change(s)\n", n)
	return nil
}

