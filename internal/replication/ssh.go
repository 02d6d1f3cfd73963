package replication

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/objfile"
)

// SshRepo tunnels the read contract's four calls over an SSH connection
// to a remote `ori serve --stdio` process, authenticating with a local
// peer Identity keypair. Every RPC is a single line-delimited request
// and response pair over the session's combined stdin/stdout pipe, so
// calls are serialized under mu regardless of caller concurrency.
type SshRepo struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  *bufio.Scanner

	mu sync.Mutex
}

// DialSsh opens an SSH connection to addr, authenticates with signer,
// and starts `ori serve --stdio` as the remote command. ctx governs the
// dial only; the read-contract methods run every RPC with no deadline.
func DialSsh(ctx context.Context, addr, user string, signer ssh.Signer, hostKeyCallback ssh.HostKeyCallback) (*SshRepo, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("replication: dial %s: %w", addr, err)
	}
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("replication: ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("replication: open session on %s: %w", addr, err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	if err := session.Start("ori serve --stdio"); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("replication: start remote serve on %s: %w", addr, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	return &SshRepo{client: client, session: session, stdin: stdin, stdout: scanner}, nil
}

// Close terminates the remote session and the underlying connection.
func (s *SshRepo) Close() error {
	s.session.Close()
	return s.client.Close()
}

// call sends req and returns the matching response, bounded by ctx.
func (s *SshRepo) call(ctx context.Context, req request) (response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type result struct {
		resp response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := json.Marshal(req)
		if err != nil {
			done <- result{err: err}
			return
		}
		if _, err := s.stdin.Write(append(line, '\n')); err != nil {
			done <- result{err: fmt.Errorf("replication: write request: %w", err)}
			return
		}
		if !s.stdout.Scan() {
			if err := s.stdout.Err(); err != nil {
				done <- result{err: fmt.Errorf("replication: read response: %w", err)}
				return
			}
			done <- result{err: fmt.Errorf("replication: remote closed the session")}
			return
		}
		var resp response
		if err := json.Unmarshal(s.stdout.Bytes(), &resp); err != nil {
			done <- result{err: fmt.Errorf("replication: decode response: %w", err)}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case <-ctx.Done():
		return response{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return response{}, r.err
		}
		if !r.resp.OK {
			return response{}, fmt.Errorf("replication: remote error: %s", r.resp.Error)
		}
		return r.resp, nil
	}
}

// HasObject implements ReadContract with a background (no deadline)
// context; a failed RPC reports the object as absent.
func (s *SshRepo) HasObject(h hashid.HashId) bool {
	resp, err := s.call(context.Background(), request{Op: opHasObject, Hash: h.Hex()})
	if err != nil {
		return false
	}
	return resp.Exists
}

func (s *SshRepo) GetObjectBytes(h hashid.HashId) (objfile.Type, []byte, error) {
	resp, err := s.call(context.Background(), request{Op: opGetObjectBytes, Hash: h.Hex()})
	if err != nil {
		return 0, nil, err
	}
	payload, err := decodePayload(resp.Payload)
	if err != nil {
		return 0, nil, err
	}
	return objfile.Type(resp.Type), payload, nil
}

func (s *SshRepo) TypeOf(h hashid.HashId) (objfile.Type, error) {
	resp, err := s.call(context.Background(), request{Op: opTypeOf, Hash: h.Hex()})
	if err != nil {
		return 0, err
	}
	return objfile.Type(resp.Type), nil
}

func (s *SshRepo) ListHeads() ([]hashid.HashId, error) {
	resp, err := s.call(context.Background(), request{Op: opListHeads})
	if err != nil {
		return nil, err
	}
	return decodeHeads(resp.Heads)
}
