package replication

import (
	"fmt"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/objfile"
	"github.com/ori-fs/ori/internal/orierr"
)

// Pull fetches every object reachable from src's HEAD that sink doesn't
// already have, walking children before parents so the local Store is
// referentially closed at every step, then advances sink's HEAD to
// match src's.
func Pull(src ReadContract, sink Sink) (hashid.HashId, error) {
	heads, err := src.ListHeads()
	if err != nil {
		return hashid.Empty, fmt.Errorf("replication: list remote heads: %w", err)
	}
	if len(heads) == 0 {
		return hashid.Empty, nil
	}
	head := heads[0]

	visited := make(map[hashid.HashId]bool)
	if err := pullClosure(src, sink, head, visited); err != nil {
		return hashid.Empty, err
	}
	if err := sink.UpdateHead(head); err != nil {
		return hashid.Empty, fmt.Errorf("replication: update HEAD: %w", err)
	}
	return head, nil
}

// pullClosure fetches h and everything h transitively references,
// depth-first, inserting h only after all of its targets already exist
// locally.
func pullClosure(src ReadContract, sink Sink, h hashid.HashId, visited map[hashid.HashId]bool) error {
	if h.IsEmpty() || visited[h] {
		return nil
	}
	visited[h] = true
	if sink.HasObject(h) {
		return nil
	}

	typ, payload, err := src.GetObjectBytes(h)
	if err != nil {
		return fmt.Errorf("replication: fetch %s: %w", h, err)
	}
	targets, err := outgoingEdges(typ, payload)
	if err != nil {
		return fmt.Errorf("replication: decode %s: %w", h, err)
	}
	for _, t := range targets {
		if err := pullClosure(src, sink, t, visited); err != nil {
			return err
		}
	}

	got, err := sink.InsertRaw(typ, payload)
	if err != nil {
		return fmt.Errorf("replication: insert %s: %w", h, err)
	}
	if got != h {
		return orierr.New(orierr.IntegrityError, fmt.Sprintf("replication: peer sent %s for requested %s", got, h))
	}
	for _, t := range targets {
		if err := sink.AddBackref(t, h, objfile.RoleRef); err != nil {
			return fmt.Errorf("replication: backref %s -> %s: %w", h, t, err)
		}
	}
	return nil
}

// outgoingEdges decodes typ's payload to the hashes it transitively
// references, mirroring internal/repo's own rebuildrefs walk so both
// sides of a pull agree on what "closed" means.
func outgoingEdges(typ objfile.Type, payload []byte) ([]hashid.HashId, error) {
	switch typ {
	case objfile.TypeCommit:
		c, err := model.DecodeCommit(payload)
		if err != nil {
			return nil, err
		}
		targets := []hashid.HashId{c.TreeHash, c.Parent1}
		if c.HasSecondParent() {
			targets = append(targets, c.Parent2)
		}
		if c.IsGraft() {
			targets = append(targets, c.GraftCommitHash)
		}
		return nonEmpty(targets), nil
	case objfile.TypeTree:
		t, err := model.DecodeTree(payload)
		if err != nil {
			return nil, err
		}
		targets := make([]hashid.HashId, len(t.Entries))
		for i, e := range t.Entries {
			targets[i] = e.Hash
		}
		return nonEmpty(targets), nil
	case objfile.TypeLargeBlob:
		lb, err := model.DecodeLargeBlob(payload)
		if err != nil {
			return nil, err
		}
		targets := make([]hashid.HashId, len(lb.Fragments))
		for i, f := range lb.Fragments {
			targets[i] = f.ChunkHash
		}
		return nonEmpty(targets), nil
	default:
		return nil, nil
	}
}

func nonEmpty(hs []hashid.HashId) []hashid.HashId {
	out := hs[:0]
	for _, h := range hs {
		if !h.IsEmpty() {
			out = append(out, h)
		}
	}
	return out
}
