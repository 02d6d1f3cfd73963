package replication

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/repo"
)

func TestServeHandlesAllFourOps(t *testing.T) {
	r, commitHash := seedRepo(t)

	var reqs bytes.Buffer
	enc := json.NewEncoder(&reqs)
	for _, req := range []request{
		{Op: opListHeads},
		{Op: opHasObject, Hash: commitHash.Hex()},
		{Op: opTypeOf, Hash: commitHash.Hex()},
		{Op: opGetObjectBytes, Hash: commitHash.Hex()},
	} {
		if err := enc.Encode(req); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	var out bytes.Buffer
	if err := Serve(r, &reqs, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	scanner := bufio.NewScanner(&out)
	var responses []response
	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		responses = append(responses, resp)
	}
	if len(responses) != 4 {
		t.Fatalf("expected 4 responses, got %d", len(responses))
	}

	if !responses[0].OK || len(responses[0].Heads) != 1 || responses[0].Heads[0] != commitHash.Hex() {
		t.Fatalf("listHeads response: %+v", responses[0])
	}
	if !responses[1].OK || !responses[1].Exists {
		t.Fatalf("hasObject response: %+v", responses[1])
	}
	if !responses[2].OK {
		t.Fatalf("typeOf response: %+v", responses[2])
	}
	if !responses[3].OK || responses[3].Payload == "" {
		t.Fatalf("getObject response: %+v", responses[3])
	}
	payload, err := decodePayload(responses[3].Payload)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	c, err := model.DecodeCommit(payload)
	if err != nil {
		t.Fatalf("DecodeCommit: %v", err)
	}
	if c.Message != "first" {
		t.Fatalf("got message %q", c.Message)
	}
}

func TestServeReportsUnknownOp(t *testing.T) {
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	var reqs bytes.Buffer
	json.NewEncoder(&reqs).Encode(request{Op: "bogus"})

	var out bytes.Buffer
	if err := Serve(r, &reqs, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	var resp response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OK {
		t.Fatal("expected OK=false for an unknown op")
	}
}
