package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"Showtimes_Sync/internal/model"
	redisrepo "Showtimes_Sync/internal/repository/redis"
)

func newResyncCommand(ctx *commandContext) *cobra.Command {
	resyncCmd := &cobra.Command{
		Use:   "resync",
		Short: "Inspect and drive the pending-resync set",
	}
	resyncCmd.AddCommand(newResyncStatusCommand(ctx))
	resyncCmd.AddCommand(newResyncFlushCommand(ctx))
	return resyncCmd
}

func newResyncStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List communities waiting for a remote push",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rdb, err := redisrepo.Open(cmd.Context(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer rdb.Close()

			entries, err := redisrepo.NewResyncRepository(rdb, cfg.Cache.KeyPrefix).Entries(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No communities pending resync")
				return nil
			}
			fmt.Fprintln(out, renderResyncTable(entries))
			return nil
		},
	}
}

func newResyncFlushCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Retry every pending community now, ignoring backoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			e, err := openEngine(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.Reconciler.Flush(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %d, failed %d, dropped %d\n", len(res.Pushed), len(res.Failed), len(res.Dropped))
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d communities still pending", len(res.Failed))
			}
			return nil
		},
	}
}

func renderResyncTable(entries []model.ResyncEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		alerted := ""
		if e.Alerted {
			alerted = "yes"
		}
		rows = append(rows, []string{
			strconv.FormatUint(e.CommunityID, 10),
			strconv.Itoa(e.Attempts),
			formatTime(e.FirstFailure),
			formatTime(e.NextAttempt),
			alerted,
			e.LastError,
		})
	}
	return renderTable(
		[]string{"Community", "Attempts", "Pending Since", "Next Attempt", "Alerted", "Last Error"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
