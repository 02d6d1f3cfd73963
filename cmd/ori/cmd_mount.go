package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ori-fs/ori/internal/fuseadapter"
	"github.com/ori-fs/ori/internal/overlay"
	"github.com/ori-fs/ori/internal/replication"
	"github.com/ori-fs/ori/internal/repo"
)

// mountOptions is the parsed form of `-o repo=...,clone=...,cache=...,journal=...`.
type mountOptions struct {
	repoPath string
	clone    string
	cache    overlay.CacheMode
	journal  overlay.JournalMode
}

func parseMountOptions(s string) (mountOptions, error) {
	opts := mountOptions{repoPath: ".", journal: overlay.AsyncJournal}
	if s == "" {
		return opts, nil
	}
	for _, kv := range strings.Split(s, ",") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		key := parts[0]
		val := ""
		if len(parts) == 2 {
			val = parts[1]
		}
		switch key {
		case "repo":
			opts.repoPath = val
		case "clone":
			opts.clone = val
		case "cache":
			mode, err := overlay.ParseCacheMode(val)
			if err != nil {
				return opts, err
			}
			opts.cache = mode
		case "journal":
			mode, err := overlay.ParseJournalMode(val)
			if err != nil {
				return opts, err
			}
			opts.journal = mode
		default:
			return opts, fmt.Errorf("mount: unknown option %q", key)
		}
	}
	return opts, nil
}

func newMountCmd() *cobra.Command {
	var optsStr string
	var singleThreaded bool
	var debug bool
	cmd := &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Mount a repository's working set as a FUSE file system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mountpoint := args[0]
			opts, err := parseMountOptions(optsStr)
			if err != nil {
				return err
			}

			abs, err := filepath.Abs(opts.repoPath)
			if err != nil {
				return fmt.Errorf("resolve repo path: %w", err)
			}

			var r *repo.Repo
			if opts.clone != "" {
				if err := os.MkdirAll(abs, 0755); err != nil {
					return fmt.Errorf("create repo directory: %w", err)
				}
				r, err = repo.Init(abs)
				if err != nil {
					return err
				}
				contract, closeFn, err := openContract(cmd.Context(), opts.clone)
				if err != nil {
					return err
				}
				head, err := replication.Pull(contract, r)
				closeFn()
				if err != nil {
					return err
				}
				slog.Info("cloned before mount", "clone", opts.clone, "head", head.Hex())
			} else {
				r, err = repo.Open(abs)
				if err != nil {
					return err
				}
			}

			done, err := attachRepoLog(r)
			if err == nil {
				defer done()
			}

			if err := os.MkdirAll(mountpoint, 0755); err != nil {
				return fmt.Errorf("create mountpoint: %w", err)
			}

			ov, err := overlay.OpenWithCache(r, opts.journal, opts.cache)
			if err != nil {
				return fmt.Errorf("open overlay: %w", err)
			}

			slog.Info("mounting", "mountpoint", mountpoint, "repo", abs)
			server, err := fuseadapter.Mount(mountpoint, ov, fuseadapter.MountOptions{
				Debug:          debug,
				SingleThreaded: singleThreaded,
			})
			if err != nil {
				return fmt.Errorf("mount failed: %w", err)
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigs
				slog.Info("shutting down", "mountpoint", mountpoint)
				if h, err := ov.Commit("unmount", currentUser()); err != nil {
					slog.Error("commit on unmount failed", "error", err)
				} else if !h.IsEmpty() {
					slog.Info("committed on unmount", "commit", h.Hex())
				}
				server.Unmount()
			}()

			slog.Info("ready", "pid", os.Getpid())
			server.Wait()
			slog.Info("stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&optsStr, "options", "o", "", "comma-separated repo=,clone=,cache=,journal= options")
	cmd.Flags().BoolVarP(&singleThreaded, "single-threaded", "s", false, "serve FUSE callbacks single-threaded")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable FUSE debug logging")
	return cmd
}
