package comments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commenthub/pkg/models"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func comment(id int64, parent int64, offset time.Duration) *models.Comment {
	c := &models.Comment{
		ID:        id,
		Author:    models.User{ID: 1, Username: "alice"},
		Text:      "text",
		CreatedAt: epoch.Add(offset),
		UpdatedAt: epoch.Add(offset),
	}
	if parent != 0 {
		p := parent
		c.ParentID = &p
	}
	return c
}

func TestInsertReply_AppendsUnderParent(t *testing.T) {
	root := comment(1, 0, 0)
	ix := buildIndex(root)

	assert.True(t, ix.insertReply(comment(2, 1, time.Second), nil))
	assert.True(t, ix.insertReply(comment(3, 1, 2*time.Second), nil))

	require.Len(t, root.Replies, 2)
	assert.Equal(t, int64(2), root.Replies[0].ID)
	assert.Equal(t, int64(3), root.Replies[1].ID)
}

func TestInsertReply_NestedParent(t *testing.T) {
	root := comment(1, 0, 0)
	root.Replies = []*models.Comment{comment(2, 1, time.Second)}
	root.Replies[0].Replies = []*models.Comment{comment(3, 2, 2*time.Second)}
	ix := buildIndex(root)

	assert.True(t, ix.insertReply(comment(4, 3, 3*time.Second), nil))

	deep := root.Replies[0].Replies[0]
	require.Len(t, deep.Replies, 1)
	assert.Equal(t, int64(4), deep.Replies[0].ID)
	assert.True(t, ix.has(4))
}

func TestInsertReply_DuplicateIsNoop(t *testing.T) {
	root := comment(1, 0, 0)
	ix := buildIndex(root)
	require.True(t, ix.insertReply(comment(2, 1, time.Second), nil))
	before := root.Clone()

	dup := comment(2, 1, time.Second)
	dup.Text = "changed"
	assert.False(t, ix.insertReply(dup, nil))

	assert.Equal(t, before, root)
}

func TestInsertReply_MissingParent(t *testing.T) {
	root := comment(1, 0, 0)
	ix := buildIndex(root)

	assert.False(t, ix.insertReply(comment(2, 99, time.Second), nil))
	assert.False(t, ix.insertReply(comment(3, 0, time.Second), nil))
	assert.Empty(t, root.Replies)
}

func TestInsertReply_StoresCopy(t *testing.T) {
	root := comment(1, 0, 0)
	ix := buildIndex(root)
	reply := comment(2, 1, time.Second)
	require.True(t, ix.insertReply(reply, nil))

	reply.Text = "mutated by caller"
	assert.Equal(t, "text", root.Replies[0].Text)
}

func TestInsertReply_Ordering(t *testing.T) {
	tests := []struct {
		name  string
		order ReplyOrder
		want  []int64
	}{
		{"arrival", nil, []int64{3, 2}},
		{"created_at", ByCreatedAt, []int64{2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := comment(1, 0, 0)
			ix := buildIndex(root)
			// 3 is newer but arrives first
			ix.insertReply(comment(3, 1, 2*time.Second), tt.order)
			ix.insertReply(comment(2, 1, time.Second), tt.order)

			var got []int64
			for _, r := range root.Replies {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
