package replication

import (
	"github.com/ori-fs/ori/internal/hashid"
	"github.com/ori-fs/ori/internal/objfile"
	"github.com/ori-fs/ori/internal/repo"
)

// LocalRepo answers the read contract by calling straight into a
// repository opened on the local filesystem, for clone/pull between two
// repositories on one host.
type LocalRepo struct {
	r *repo.Repo
}

// OpenLocal opens the repository rooted at path as a read-contract peer.
func OpenLocal(path string) (*LocalRepo, error) {
	r, err := repo.Open(path)
	if err != nil {
		return nil, err
	}
	return &LocalRepo{r: r}, nil
}

func (l *LocalRepo) HasObject(h hashid.HashId) bool {
	return l.r.HasObject(h)
}

func (l *LocalRepo) GetObjectBytes(h hashid.HashId) (objfile.Type, []byte, error) {
	return l.r.GetObjectBytes(h)
}

func (l *LocalRepo) TypeOf(h hashid.HashId) (objfile.Type, error) {
	return l.r.TypeOf(h)
}

func (l *LocalRepo) ListHeads() ([]hashid.HashId, error) {
	return l.r.ListHeads()
}
