package main

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ori-fs/ori/internal/hashid"
)

func newListObjCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listobj",
		Short: "List every object hash in the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			hashes, err := r.ListObjects()
			if err != nil {
				return err
			}
			sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })
			out := cmd.OutOrStdout()
			for _, h := range hashes {
				typ, err := r.TypeOf(h)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", h, typ)
			}
			return nil
		},
	}
}

func newCatObjCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catobj <hash>",
		Short: "Print an object's raw decoded content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hashid.FromHex(args[0])
			if err != nil {
				return fmt.Errorf("parse hash: %w", err)
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			typ, payload, err := r.GetObjectBytes(h)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "type: %s\n", typ)
			fmt.Fprintf(out, "size: %d\n", len(payload))
			_, err = out.Write(payload)
			return err
		},
	}
}

func newPurgeObjCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purgeobj <hash>",
		Short: "Replace a blob's content with a tombstone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hashid.FromHex(args[0])
			if err != nil {
				return fmt.Errorf("parse hash: %w", err)
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			if err := r.Purge(h); err != nil {
				return err
			}
			slog.Info("purged object", "hash", h.Hex())
			fmt.Fprintf(cmd.OutOrStdout(), "%s purged\n", h)
			return nil
		},
	}
}
