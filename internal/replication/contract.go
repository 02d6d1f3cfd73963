// Package replication implements Ori's pull-based replication protocol:
// a transitive-closure walk over a remote repository's commit DAG that
// fetches only the objects the local Store is missing, against a
// narrow read contract two transports (local disk, SSH-tunneled) both
// satisfy.
package replication

import (
	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/objfile"
)

// ReadContract is the four calls Pull needs from a peer, local or
// remote. *repo.Repo satisfies this structurally; LocalRepo and SshRepo
// are the two transports Pull is written against.
type ReadContract interface {
	HasObject(h hashid.HashId) bool
	GetObjectBytes(h hashid.HashId) (objfile.Type, []byte, error)
	TypeOf(h hashid.HashId) (objfile.Type, error)
	ListHeads() ([]hashid.HashId, error)
}

// Sink is what Pull writes fetched objects into: the local Store side
// of the contract, plus BackRef maintenance for what it inserts.
type Sink interface {
	HasObject(h hashid.HashId) bool
	InsertRaw(typ objfile.Type, payload []byte) (hashid.HashId, error)
	AddBackref(target, from hashid.HashId, role objfile.Role) error
	UpdateHead(h hashid.HashId) error
}
