package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ori-fs/ori/internal/repo"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create an empty Ori repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if err := os.MkdirAll(abs, 0755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
			r, err := repo.Init(abs)
			if err != nil {
				return err
			}
			slog.Info("initialized repository", "root", r.RootDir(), "uuid", r.UUID())
			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty ori repository in %s\n", filepath.Join(r.RootDir(), ".ori")+string(filepath.Separator))
			return nil
		},
	}
}
