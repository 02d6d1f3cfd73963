package repo

import (
	"fmt"

	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/objfile"
	"github.com/ori-fs/ori/internal/orierr"
)

// VerifyStatus classifies one object's outcome under Verify.
type VerifyStatus int

const (
	VerifyOK VerifyStatus = iota
	VerifyPurged
	VerifyIntegrityError
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyOK:
		return "OK"
	case VerifyPurged:
		return "Purged"
	case VerifyIntegrityError:
		return "IntegrityError"
	default:
		return "Unknown"
	}
}

// GetRefs reads h's on-disk BackRef index.
func (r *Repo) GetRefs(h hashid.HashId) ([]objfile.BackRef, error) {
	return r.store.GetRefs(h)
}

// ComputeRefCounts walks every stored object and reads its own BackRef
// index, assembling {hash → set(fromHash)}. This reflects whatever is
// currently recorded on disk; RebuildRefs is what regenerates that
// record from the objects' actual outgoing edges.
func (r *Repo) ComputeRefCounts() (map[hashid.HashId]map[hashid.HashId]bool, error) {
	hashes, err := r.store.ListObjects()
	if err != nil {
		return nil, err
	}
	out := make(map[hashid.HashId]map[hashid.HashId]bool, len(hashes))
	for _, h := range hashes {
		refs, err := r.store.GetRefs(h)
		if err != nil {
			return nil, fmt.Errorf("repo: refs for %s: %w", h, err)
		}
		set := make(map[hashid.HashId]bool, len(refs))
		for _, ref := range refs {
			set[ref.From] = true
		}
		out[h] = set
	}
	return out, nil
}

// outgoingEdges returns the targets h refers to, derived from its
// decoded payload. Blob and Purged objects have no outgoing edges.
func (r *Repo) outgoingEdges(h hashid.HashId, typ objfile.Type, payload []byte) ([]hashid.HashId, error) {
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

// RebuildRefs recomputes every object's BackRef index from scratch: it
// clears every object's index, then replays every object's own outgoing
// edges as a BackRef on the target. Unlike ComputeRefCounts (which just
// reads whatever is on disk), this regenerates that record, so it
// recovers from an index that incremental maintenance failed to keep in
// sync with the objects actually stored.
func (r *Repo) RebuildRefs() error {
	hashes, err := r.store.ListObjects()
	if err != nil {
		return err
	}
	for _, h := range hashes {
		if err := r.store.ClearMetadata(h); err != nil {
			return fmt.Errorf("repo: clear metadata for %s: %w", h, err)
		}
	}
	for _, h := range hashes {
		rec, err := r.store.GetRaw(h)
		if err != nil {
			return fmt.Errorf("repo: read %s: %w", h, err)
		}
		targets, err := r.outgoingEdges(h, rec.Type, rec.Payload)
		if err != nil {
			// A corrupt object's edges can't be replayed; Verify is the
			// command that reports this, RebuildRefs skips it and moves on.
			continue
		}
		for _, t := range targets {
			if err := r.store.AddBackref(t, h, objfile.RoleRef); err != nil {
				return fmt.Errorf("repo: backref %s -> %s: %w", h, t, err)
			}
		}
	}
	return nil
}

// VerifyObject re-hashes h's canonical payload and compares it against
// h. A Purged object is reported separately rather than as an error: its
// tombstone payload is expected not to hash back to h.
func (r *Repo) VerifyObject(h hashid.HashId) (VerifyStatus, error) {
	rec, err := r.store.GetRaw(h)
	if err != nil {
		return VerifyIntegrityError, err
	}
	if rec.Type == objfile.TypePurged {
		return VerifyPurged, nil
	}
	if hashid.Sum(rec.Payload) != h {
		return VerifyIntegrityError, orierr.New(orierr.IntegrityError, fmt.Sprintf("repo: %s recomputes to a different hash", h))
	}
	return VerifyOK, nil
}

// Verify walks every stored object and classifies it OK, Purged, or
// IntegrityError. It never returns early on a single bad object: a
// corrupt repository reports every failure it finds.
func (r *Repo) Verify() (map[hashid.HashId]VerifyStatus, error) {
	hashes, err := r.store.ListObjects()
	if err != nil {
		return nil, err
	}
	out := make(map[hashid.HashId]VerifyStatus, len(hashes))
	for _, h := range hashes {
		status, _ := r.VerifyObject(h)
		out[h] = status
	}
	return out, nil
}

// FindLostHeads returns every stored Commit with zero incoming Ref
// BackRefs, excluding the current HEAD: commits that used to be a head
// but were orphaned by history rewriting or an interrupted operation.
func (r *Repo) FindLostHeads() ([]hashid.HashId, error) {
	head, err := r.Head()
	if err != nil {
		return nil, err
	}
	hashes, err := r.store.ListObjects()
	if err != nil {
		return nil, err
	}
	var lost []hashid.HashId
	for _, h := range hashes {
		typ, err := r.store.TypeOf(h)
		if err != nil || typ != objfile.TypeCommit {
			continue
		}
		if h.Equal(head) {
			continue
		}
		refs, err := r.store.GetRefs(h)
		if err != nil {
			continue
		}
		incoming := 0
		for _, ref := range refs {
			if ref.Role == objfile.RoleRef {
				incoming++
			}
		}
		if incoming == 0 {
			lost = append(lost, h)
		}
	}
	return lost, nil
}
