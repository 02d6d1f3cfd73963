package replication

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ori-fs/ori/internal/hashid"
)

// Serve runs the server side of the read contract over in/out for a
// single session: one newline-delimited JSON request in, one response
// out, until in is exhausted. It is what `ori serve --stdio` runs,
// suitable for invocation as an SSH ForceCommand.
func Serve(r ReadContract, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := enc.Encode(response{Error: fmt.Sprintf("malformed request: %v", err)}); err != nil {
				return err
			}
			continue
		}
		resp := handle(r, req)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func handle(r ReadContract, req request) response {
	switch req.Op {
	case opHasObject:
		h, err := hashid.FromHex(req.Hash)
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Exists: r.HasObject(h)}
	case opGetObjectBytes:
		h, err := hashid.FromHex(req.Hash)
		if err != nil {
			return response{Error: err.Error()}
		}
		typ, payload, err := r.GetObjectBytes(h)
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Type: uint8(typ), Payload: encodePayload(payload)}
	case opTypeOf:
		h, err := hashid.FromHex(req.Hash)
		if err != nil {
			return response{Error: err.Error()}
		}
		typ, err := r.TypeOf(h)
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Type: uint8(typ)}
	case opListHeads:
		heads, err := r.ListHeads()
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Heads: encodeHeads(heads)}
	default:
		return response{Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}
