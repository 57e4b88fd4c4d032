package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"Showtimes_Sync/internal/model"
	mysqlrepo "Showtimes_Sync/internal/repository/mysql"
)

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Dump the remote store as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := mysqlrepo.Open(cfg.MySQL.DSN)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			snap, err := mysqlrepo.NewCommunityRepository(db).Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create snapshot file: %w", err)
				}
				defer f.Close()
				w = f
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d communities to %s\n", len(snap.Communities), outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "-", "Snapshot destination (- for stdout)")
	return cmd
}

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot.json>",
		Short: "Restore a snapshot into the remote store and the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(args[0])
			if err != nil {
				return err
			}
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

			if err := e.Communities.Restore(cmd.Context(), snap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d communities\n", len(snap.Communities))
			return nil
		},
	}
}

func readSnapshot(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	for i, rec := range snap.Communities {
		if rec == nil || rec.CommunityID == 0 {
			return nil, fmt.Errorf("snapshot entry %d has no community id", i)
		}
	}
	return &snap, nil
}
