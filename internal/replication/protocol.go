package replication

import (
	"encoding/base64"

	"github.com/ori-fs/ori/internal/hashid"
)

// request/response are the newline-delimited JSON envelopes exchanged
// over a `ori serve --stdio` session. Bulk object bytes ride inside the
// response, base64-encoded, rather than on a separate binary channel:
// the read contract is four tiny, latency-insensitive calls, not a
// bulk-data path.
type request struct {
	Op   string `json:"op"`
	Hash string `json:"hash,omitempty"`
}

type response struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Exists  bool     `json:"exists,omitempty"`
	Type    uint8    `json:"type,omitempty"`
	Payload string   `json:"payload,omitempty"`
	Heads   []string `json:"heads,omitempty"`
}

const (
	opHasObject      = "hasObject"
	opGetObjectBytes = "getObject"
	opTypeOf         = "typeOf"
	opListHeads      = "listHeads"
)

func encodePayload(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodePayload(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func encodeHeads(hs []hashid.HashId) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Hex()
	}
	return out
}

func decodeHeads(ss []string) ([]hashid.HashId, error) {
	out := make([]hashid.HashId, len(ss))
	for i, s := range ss {
		h, err := hashid.FromHex(s)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}
