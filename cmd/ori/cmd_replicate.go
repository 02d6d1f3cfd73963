package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/ori-fs/ori/internal/identity"
	"github.com/ori-fs/ori/internal/replication"
	"github.com/ori-fs/ori/internal/repo"
)

// sshTarget splits a "user@host:port" replication address. A source
// with no "@" is treated as a local path, never as SSH.
func sshTarget(addr string) (user, hostport string, ok bool) {
	at := strings.Index(addr, "@")
	if at < 0 {
		return "", "", false
	}
	return addr[:at], addr[at+1:], true
}

// openContract opens src as a ReadContract, dispatching to the local or
// SSH transport based on whether it looks like a "user@host:port"
// address. An SshRepo is also an io.Closer through Close; callers that
// get one back are responsible for closing it.
func openContract(ctx context.Context, src string) (replication.ReadContract, func(), error) {
	if user, hostport, ok := sshTarget(src); ok {
		id, err := identity.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("load identity: %w", err)
		}
		signer, err := id.Signer()
		if err != nil {
			return nil, nil, fmt.Errorf("derive signer: %w", err)
		}
		sr, err := replication.DialSsh(ctx, hostport, user, signer, ssh.InsecureIgnoreHostKey())
		if err != nil {
			return nil, nil, err
		}
		return sr, func() { sr.Close() }, nil
	}
	lr, err := replication.OpenLocal(src)
	if err != nil {
		return nil, nil, err
	}
	return lr, func() {}, nil
}

func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <src> [dst]",
		Short: "Create a new repository by pulling everything from src",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			dst := "."
			if len(args) > 1 {
				dst = args[1]
			}
			abs, err := filepath.Abs(dst)
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
			contract, closeFn, err := openContract(cmd.Context(), src)
			if err != nil {
				return err
			}
			defer closeFn()
			head, err := replication.Pull(contract, r)
			if err != nil {
				return err
			}
			slog.Info("cloned repository", "src", src, "dst", abs, "head", head.Hex())
			fmt.Fprintf(cmd.OutOrStdout(), "cloned into %s at %s\n", abs, head)
			return nil
		},
	}
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <src>",
		Short: "Pull everything new reachable from src's HEAD into this repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			contract, closeFn, err := openContract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()
			head, err := replication.Pull(contract, r)
			if err != nil {
				return err
			}
			slog.Info("pulled from peer", "src", args[0], "head", head.Hex())
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", head)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read contract for a replication peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdio {
				return fmt.Errorf("serve: only --stdio is supported")
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			slog.Info("serving read contract over stdio", "root", r.RootDir())
			return replication.Serve(r, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve over stdin/stdout, for an SSH ForceCommand")
	return cmd
}
