package main

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/orierr"
	"github.com/ori-fs/ori/internal/repo"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every stored object and report integrity failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			results, err := r.Verify()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			bad := 0
			for _, h := range sortedHashes(results) {
				status := results[h]
				if status == repo.VerifyOK {
					continue
				}
				bad++
				fmt.Fprintf(out, "%s: %s\n", h, status)
			}
			fmt.Fprintf(out, "%d objects, %d problems\n", len(results), bad)
			if bad > 0 {
				return orierr.New(orierr.Corrupted, fmt.Sprintf("verify found %d problems", bad))
			}
			return nil
		},
	}
}

func newFindHeadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "findheads",
		Short: "List reachable commits that look orphaned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			lost, err := r.FindLostHeads()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, h := range lost {
				fmt.Fprintln(out, h)
			}
			return nil
		},
	}
}

func newRebuildRefsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuildrefs",
		Short: "Recompute every object's BackRef index from scratch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			if err := r.RebuildRefs(); err != nil {
				return err
			}
			slog.Info("rebuilt backref index")
			fmt.Fprintln(cmd.OutOrStdout(), "refs rebuilt")
			return nil
		},
	}
}

func newRefcountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refcount [hash]",
		Short: "Show the BackRef count for an object, or every object",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				h, err := hashid.FromHex(args[0])
				if err != nil {
					return fmt.Errorf("parse hash: %w", err)
				}
				refs, err := r.GetRefs(h)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d refs\n", h, len(refs))
				return nil
			}
			counts, err := r.ComputeRefCounts()
			if err != nil {
				return err
			}
			for _, h := range sortedRefCountHashes(counts) {
				fmt.Fprintf(out, "%s: %d refs\n", h, len(counts[h]))
			}
			return nil
		},
	}
}

func sortedHashes(m map[hashid.HashId]repo.VerifyStatus) []hashid.HashId {
	out := make([]hashid.HashId, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func sortedRefCountHashes(m map[hashid.HashId]map[hashid.HashId]bool) []hashid.HashId {
	out := make([]hashid.HashId, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
