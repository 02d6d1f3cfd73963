package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the commit at HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			head, err := r.Head()
			if err != nil {
				return err
			}
			if head.IsEmpty() {
				fmt.Fprintln(cmd.OutOrStdout(), "no commits yet")
				return nil
			}
			c, err := r.GetCommit(head)
			if err != nil {
				return err
			}
			printCommit(cmd, head, c)
			return nil
		},
	}
}

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Show commit history starting at HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			head, err := r.Head()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if head.IsEmpty() {
				fmt.Fprintln(out, "no commits yet")
				return nil
			}
			for h := head; !h.IsEmpty(); {
				c, err := r.GetCommit(h)
				if err != nil {
					return err
				}
				printCommit(cmd, h, c)
				fmt.Fprintln(out)
				h = c.Parent1
			}
			return nil
		},
	}
}

func printCommit(cmd *cobra.Command, h hashid.HashId, c model.Commit) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "commit %s\n", h)
	if c.HasSecondParent() {
		fmt.Fprintf(out, "parents: %s %s\n", c.Parent1, c.Parent2)
	} else if !c.Parent1.IsEmpty() {
		fmt.Fprintf(out, "parent:  %s\n", c.Parent1)
	}
	if c.User != "" {
		fmt.Fprintf(out, "user:    %s\n", c.User)
	}
	fmt.Fprintf(out, "date:    %s\n", c.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if c.SnapshotName != "" {
		fmt.Fprintf(out, "snapshot: %s\n", c.SnapshotName)
	}
	if c.IsGraft() {
		fmt.Fprintf(out, "graft:   %s:%s (%s)\n", c.GraftRepo, c.GraftPath, c.GraftCommitHash)
	}
	fmt.Fprintf(out, "\n    %s\n", c.Message)
}
