package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/store"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

var snapshotLimit int

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "List or restore saved registry snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotList,
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Make a snapshot active and rewrite the stored targets from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotRestore,
}

func init() {
	snapshotListCmd.Flags().IntVar(&snapshotLimit, "limit", 20, "Maximum snapshots to list")
	snapshotCmd.AddCommand(snapshotListCmd, snapshotRestoreCmd)
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	s, err := store.Open(cfg.Database, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.ListSnapshots(snapshotLimit)
	if err != nil {
		return err
	}
	active, err := s.ActiveSnapshot()
	if err != nil && len(recs) > 0 {
		return err
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "no snapshots")
		return nil
	}
	for _, r := range recs {
		mark := " "
		if r.ID == active.ID {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s  %s  %4d targets  parent %s\n",
			mark, r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.TargetCount, orDash(r.ParentID))
	}
	return nil
}

func runSnapshotRestore(cmd *cobra.Command, args []string) error {
	model := belief.NewModel(cfg.Tables())
	s, err := store.Open(cfg.Database, model)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Rollback(args[0]); err != nil {
		return err
	}
	tr := tracker.New(model, tracker.WithLogger(logger))
	rec, err := s.RestoreActive(tr)
	if err != nil {
		return err
	}
	if err := s.ReplaceAll(tr.Targets()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %d targets from snapshot %s\n", rec.TargetCount, rec.ID)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
