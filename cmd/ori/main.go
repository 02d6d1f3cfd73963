package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("ORI_DEBUG") != "" {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	root := &cobra.Command{
		Use:           "ori",
		Short:         "A distributed, content-addressed, versioning file system",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newInitCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newCheckoutCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newCloneCmd())
	root.AddCommand(newPullCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newFindHeadsCmd())
	root.AddCommand(newRebuildRefsCmd())
	root.AddCommand(newRefcountCmd())
	root.AddCommand(newListObjCmd())
	root.AddCommand(newCatObjCmd())
	root.AddCommand(newPurgeObjCmd())
	root.AddCommand(newSnapshotsCmd())
	root.AddCommand(newGraftCmd())
	root.AddCommand(newMountCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ori: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command failure to the CLI's three-way exit code
// convention: 0 never reaches here (Execute only errors on failure), 1
// is the default for a usage or semantic error, 2 marks an I/O failure
// against the store or the working directory.
func exitCodeFor(err error) int {
	if isIoFailure(err) {
		return 2
	}
	return 1
}
