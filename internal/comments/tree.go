package comments

import (
	"sort"

	"commenthub/pkg/models"
)

// ReplyOrder reports whether a belongs before b in a replies sequence.
// A nil ReplyOrder keeps arrival order.
type ReplyOrder func(a, b *models.Comment) bool

// ByCreatedAt orders replies oldest first
func ByCreatedAt(a, b *models.Comment) bool {
	return a.CreatedAt.Before(b.CreatedAt)
}

// index maps comment id to its node in a tree so parents are found without a scan
type index map[int64]*models.Comment

func buildIndex(roots ...*models.Comment) index {
	ix := make(index)
	for _, r := range roots {
		ix.add(r)
	}
	return ix
}

// add indexes node and its subtree. The first node seen for an id wins.
func (ix index) add(node *models.Comment) {
	if node == nil {
		return
	}
	if _, exists := ix[node.ID]; !exists {
		ix[node.ID] = node
	}
	for _, r := range node.Replies {
		ix.add(r)
	}
}

func (ix index) has(id int64) bool {
	_, ok := ix[id]
	return ok
}

// insertReply appends a copy of reply under its parent. It reports false when
// the parent is not in the tree or the reply is already present.
func (ix index) insertReply(reply *models.Comment, order ReplyOrder) bool {
	if reply.ParentID == nil {
		return false
	}
	parent, ok := ix[*reply.ParentID]
	if !ok {
		return false
	}
	if ix.has(reply.ID) {
		return false
	}
	for _, r := range parent.Replies {
		if r.ID == reply.ID {
			return false
		}
	}

	node := reply.Clone()
	parent.Replies = append(parent.Replies, node)
	if order != nil {
		sort.SliceStable(parent.Replies, func(i, j int) bool {
			return order(parent.Replies[i], parent.Replies[j])
		})
	}
	ix.add(node)
	return true
}
