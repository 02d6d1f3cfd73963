package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/ori-fs/ori/internal/orierr"
	"github.com/ori-fs/ori/internal/repo"
)

// isIoFailure reports whether err reflects a failure to read or write
// the store or working directory, rather than a usage or semantic
// error, for main's exit-code mapping.
func isIoFailure(err error) bool {
	return orierr.Is(err, orierr.Io) || orierr.Is(err, orierr.Corrupted) || orierr.Is(err, orierr.IntegrityError)
}

// openRepo opens the repository rooted at the current directory. Every
// command except init, clone and mount (which open or create their
// repository by path) assumes it is being run from inside one, the way
// the reference CLI does.
func openRepo() (*repo.Repo, error) {
	return repo.Open(".")
}

// attachRepoLog redirects the default logger's output to both stderr
// and r's .ori/ori.log, for the commands (commit, checkout, mount) whose
// diagnostics the reference lineage expects to survive the process
// exiting.
func attachRepoLog(r *repo.Repo) (func(), error) {
	f, err := os.OpenFile(r.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	prev := slog.Default()
	handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, f), nil)
	slog.SetDefault(slog.New(handler))
	return func() {
		slog.SetDefault(prev)
		f.Close()
	}, nil
}
