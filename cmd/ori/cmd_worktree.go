package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/repo"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show working tree status against HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			entries, err := r.WorkingStatus()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "nothing changed")
				return nil
			}
			for _, e := range entries {
				var mark string
				switch e.Status {
				case repo.StatusAdded:
					mark = "+"
				case repo.StatusModified:
					mark = "~"
				case repo.StatusDeleted:
					mark = "-"
				default:
					mark = "?"
				}
				fmt.Fprintf(out, "  %s %s\n", mark, filepath.ToSlash(e.Path))
			}
			return nil
		},
	}
}

func newCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit [message]",
		Short: "Commit the working tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := ""
			if len(args) > 0 {
				message = args[0]
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			if done, err := attachRepoLog(r); err == nil {
				defer done()
			}
			h, err := r.CommitWorkingTree(message, currentUser())
			if err != nil {
				return err
			}
			slog.Info("committed working tree", "commit", h.Hex())
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", h)
			return nil
		},
	}
}

func newCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout [commit]",
		Short: "Replace the working tree with a commit's contents (HEAD by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			var h hashid.HashId
			if len(args) > 0 {
				h, err = hashid.FromHex(args[0])
				if err != nil {
					return fmt.Errorf("parse commit hash: %w", err)
				}
			} else if h, err = r.Head(); err != nil {
				return err
			}
			if done, err := attachRepoLog(r); err == nil {
				defer done()
			}
			res, err := r.CheckoutCommit(h)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range res.PurgedPaths {
				fmt.Fprintf(out, "%s: Object has been purged.\n", filepath.ToSlash(p))
			}
			slog.Info("checked out commit", "commit", h.Hex(), "purged", len(res.PurgedPaths))
			return nil
		},
	}
}

func currentUser() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		if h, err := os.Hostname(); err == nil {
			return h
		}
		return "unknown"
	}
	return u.Username
}
