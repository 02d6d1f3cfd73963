package main

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ori-fs/ori/internal/repo"
)

func newSnapshotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List named snapshot commits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			snaps, err := r.ListSnapshots()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(snaps))
			for name := range snaps {
				names = append(names, name)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(out, "%s %s\n", name, snaps[name])
			}
			return nil
		},
	}
}

func newGraftCmd() *cobra.Command {
	var srcRepoPath string
	cmd := &cobra.Command{
		Use:   "graft <srcPath> <dstPath>",
		Short: "Copy a subtree from another repository into this one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if srcRepoPath == "" {
				return fmt.Errorf("graft: --from is required")
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			src, err := repo.Open(srcRepoPath)
			if err != nil {
				return fmt.Errorf("open source repository: %w", err)
			}
			h, err := r.GraftSubtree(src, args[0], args[1])
			if err != nil {
				return err
			}
			slog.Info("grafted subtree", "from", srcRepoPath, "srcPath", args[0], "dstPath", args[1], "commit", h.Hex())
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", h)
			return nil
		},
	}
	cmd.Flags().StringVar(&srcRepoPath, "from", "", "path to the source repository")
	return cmd
}
