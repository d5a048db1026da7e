// Package comments keeps a local copy of the comment listing and the comment
// being viewed, applying optimistic inserts and live replies to the reply tree.
package comments

import (
	"context"
	"errors"
	"sync"

	"commenthub/internal/api"
	"commenthub/internal/live"
	"commenthub/internal/metrics"
	"commenthub/pkg/logger"
	"commenthub/pkg/models"
)

// Gateway is the subset of the comment service the synchronizer calls
type Gateway interface {
	ListComments(ctx context.Context, params models.ListParams) (*models.CommentPage, error)
	GetComment(ctx context.Context, id int64) (*models.Comment, error)
	CreateComment(ctx context.Context, nc api.NewComment) (*models.Comment, error)
}

// TokenSource supplies the credential for the live channel
type TokenSource interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// Dialer opens live channel subscriptions
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (*live.Subscription, error)
}

// Listing is the accumulated top-level listing
type Listing struct {
	Items       []*models.Comment
	TotalCount  int
	Page        int
	SortKey     string
	SearchQuery string
}

// Options configures a Synchronizer
type Options struct {
	// WSHost is host[:port] of the live channel endpoint
	WSHost   string
	WSSecure bool
	// ReplyOrder is applied after every reply insert; nil keeps arrival order
	ReplyOrder ReplyOrder
	Metrics    metrics.Recorder
}

// Synchronizer owns the listing, the detail tree, and the live subscription.
// All state is guarded by one mutex; readers get deep copies.
type Synchronizer struct {
	gateway Gateway
	tokens  TokenSource
	dialer  Dialer
	opts    Options

	mu         sync.Mutex
	listing    Listing
	listingIdx index
	detail     *models.Comment
	detailIdx  index
	sub        *live.Subscription
	liveID     int64
	// subGen invalidates the pump of a replaced or closed subscription
	subGen    uint64
	lastError string

	changes chan struct{}
}

// FetchOption adjusts the filters of FetchComments
type FetchOption func(*Listing)

// WithOrdering sets the sort key, e.g. "-created_at" or "user__username"
func WithOrdering(key string) FetchOption {
	return func(l *Listing) { l.SortKey = key }
}

// WithSearch sets the search query; an empty query clears it
func WithSearch(q string) FetchOption {
	return func(l *Listing) { l.SearchQuery = q }
}

// New creates a synchronizer with an empty listing
func New(gw Gateway, tokens TokenSource, dialer Dialer, opts Options) *Synchronizer {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	return &Synchronizer{
		gateway:    gw,
		tokens:     tokens,
		dialer:     dialer,
		opts:       opts,
		listing:    Listing{SortKey: models.DefaultOrdering},
		listingIdx: make(index),
		detailIdx:  make(index),
		changes:    make(chan struct{}, 1),
	}
}

// Changes signals after every state change. Signals are coalesced; read the
// state with Listing or Detail after receiving one.
func (s *Synchronizer) Changes() <-chan struct{} {
	return s.changes
}

func (s *Synchronizer) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Listing returns a copy of the listing state
func (s *Synchronizer) Listing() Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.listing
	out.Items = make([]*models.Comment, len(s.listing.Items))
	for i, c := range s.listing.Items {
		out.Items[i] = c.Clone()
	}
	return out
}

// Detail returns a copy of the comment being viewed, or nil
func (s *Synchronizer) Detail() *models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail.Clone()
}

// LastError returns the message of the most recent surfaced failure
func (s *Synchronizer) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// LiveCommentID returns the comment the live channel is scoped to, or 0 when disconnected
func (s *Synchronizer) LiveCommentID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return 0
	}
	return s.liveID
}

func (s *Synchronizer) setError(err error) {
	s.mu.Lock()
	s.lastError = models.Message(err)
	s.mu.Unlock()
	s.notify()
}

// FetchComments loads one page of top-level comments. Page 1 replaces the
// listing; later pages are appended to it. Filters given as options persist
// for subsequent calls.
func (s *Synchronizer) FetchComments(ctx context.Context, page int, opts ...FetchOption) error {
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	filters := Listing{SortKey: s.listing.SortKey, SearchQuery: s.listing.SearchQuery}
	s.mu.Unlock()
	for _, opt := range opts {
		opt(&filters)
	}
	if filters.SortKey == "" {
		filters.SortKey = models.DefaultOrdering
	}
	if !models.ValidOrdering(filters.SortKey) {
		err := models.NewProtocolError(models.ErrCodeInvalidInput, "unknown ordering "+filters.SortKey, nil)
		s.setError(err)
		return err
	}

	result, err := s.gateway.ListComments(ctx, models.ListParams{
		Page:     page,
		Ordering: filters.SortKey,
		Search:   filters.SearchQuery,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{"page": page}).WithError(err).Warn("Failed to fetch comments")
		s.setError(err)
		return err
	}

	s.mu.Lock()
	s.listing.SortKey = filters.SortKey
	s.listing.SearchQuery = filters.SearchQuery
	s.listing.Page = page
	s.listing.TotalCount = result.Count
	if page == 1 {
		s.listing.Items = make([]*models.Comment, 0, len(result.Results))
		s.listingIdx = make(index)
	}
	for _, c := range result.Results {
		// rows can shift between pages when comments are added meanwhile
		if s.listingIdx.has(c.ID) {
			continue
		}
		s.listing.Items = append(s.listing.Items, c)
		s.listingIdx.add(c)
	}
	s.lastError = ""
	s.mu.Unlock()

	s.notify()
	return nil
}

// FetchCommentDetail replaces the viewed comment with a fresh copy of id and its replies
func (s *Synchronizer) FetchCommentDetail(ctx context.Context, id int64) (*models.Comment, error) {
	c, err := s.gateway.GetComment(ctx, id)
	if err != nil {
		logger.WithFields(map[string]interface{}{"comment_id": id}).WithError(err).Warn("Failed to fetch comment")
		s.setError(err)
		return nil, err
	}

	s.mu.Lock()
	s.detail = c
	s.detailIdx = buildIndex(c)
	s.lastError = ""
	out := c.Clone()
	s.mu.Unlock()

	s.notify()
	return out, nil
}

// AddComment posts a comment and places it locally: top-level comments go to
// the head of the listing, replies under their parent when it is loaded.
// The created comment is returned even when it could not be placed.
func (s *Synchronizer) AddComment(ctx context.Context, nc api.NewComment) (*models.Comment, error) {
	created, err := s.gateway.CreateComment(ctx, nc)
	if err != nil {
		s.setError(err)
		return nil, err
	}
	if created.ParentID == nil && nc.ParentID != nil {
		p := *nc.ParentID
		created.ParentID = &p
	}

	s.mu.Lock()
	if created.IsTopLevel() {
		if !s.listingIdx.has(created.ID) {
			node := created.Clone()
			s.listing.Items = append([]*models.Comment{node}, s.listing.Items...)
			s.listing.TotalCount++
			s.listingIdx.add(node)
		}
	} else if !s.placeReplyLocked(created) {
		logger.WithFields(map[string]interface{}{
			"comment_id": created.ID,
			"parent_id":  *created.ParentID,
		}).Debug("Parent not loaded, skipping local insert")
	}
	s.lastError = ""
	s.mu.Unlock()

	s.notify()
	return created.Clone(), nil
}

// placeReplyLocked inserts reply into the detail tree when it holds the
// parent, otherwise into the listing tree. It reports whether the tree changed.
func (s *Synchronizer) placeReplyLocked(reply *models.Comment) bool {
	parentID := *reply.ParentID
	if s.detailIdx.has(parentID) {
		return s.detailIdx.insertReply(reply, s.opts.ReplyOrder)
	}
	if s.listingIdx.has(parentID) {
		return s.listingIdx.insertReply(reply, s.opts.ReplyOrder)
	}
	return false
}

// ConnectLiveChannel replaces any open subscription with one scoped to
// commentID. The access token is attached when the session has one.
func (s *Synchronizer) ConnectLiveChannel(ctx context.Context, commentID int64) error {
	s.DisconnectLiveChannel()

	var accessToken string
	if s.tokens != nil {
		tok, err := s.tokens.GetValidAccessToken(ctx)
		switch {
		case err == nil:
			accessToken = tok
		case errors.Is(err, models.ErrNoAccessToken):
			logger.Debug("Connecting live channel anonymously")
		default:
			s.setError(err)
			return err
		}
	}

	sub, err := s.dialer.Dial(ctx, live.Endpoint(s.opts.WSHost, s.opts.WSSecure, commentID, accessToken))
	if err != nil {
		logger.WithFields(map[string]interface{}{"comment_id": commentID}).WithError(err).Warn("Failed to open live channel")
		s.setError(err)
		return err
	}

	s.mu.Lock()
	old := s.sub
	s.subGen++
	gen := s.subGen
	s.sub = sub
	s.liveID = commentID
	s.mu.Unlock()

	// a concurrent connect may have installed its own subscription meanwhile
	if old != nil {
		old.Close()
	}
	go s.pump(sub, gen)
	s.notify()
	return nil
}

// DisconnectLiveChannel closes the subscription if one is open
func (s *Synchronizer) DisconnectLiveChannel() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.liveID = 0
	s.subGen++
	s.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		logger.Warnf("Closing live channel: %v", err)
	}
	s.notify()
}

// Close releases the live channel
func (s *Synchronizer) Close() {
	s.DisconnectLiveChannel()
}

// pump applies events from sub until it ends or is superseded
func (s *Synchronizer) pump(sub *live.Subscription, gen uint64) {
	events, errs := sub.Events(), sub.Errors()
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.applyLive(ev, gen)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("Live channel failed")
			s.mu.Lock()
			if s.subGen == gen {
				s.lastError = models.Message(err)
			}
			s.mu.Unlock()
			s.notify()
		}
	}

	// the service ended the subscription
	s.mu.Lock()
	ended := s.subGen == gen
	if ended {
		s.sub = nil
		s.liveID = 0
		s.subGen++
	}
	s.mu.Unlock()
	if ended {
		logger.Debug("Live channel ended")
		if err := sub.Close(); err != nil {
			logger.Warnf("Closing live channel: %v", err)
		}
		s.notify()
	}
}

// applyLive merges a live event. Replies whose parent is not loaded, or that
// are already present, are dropped.
func (s *Synchronizer) applyLive(ev live.Event, gen uint64) {
	if ev.Type != models.LiveMessageNewReply || ev.Reply == nil {
		return
	}

	s.mu.Lock()
	if s.subGen != gen {
		s.mu.Unlock()
		return
	}
	applied := s.placeReplyLocked(ev.Reply)
	s.mu.Unlock()

	s.opts.Metrics.RecordLiveMessage(ev.Type, applied)
	if !applied {
		logger.WithFields(map[string]interface{}{"comment_id": ev.Reply.ID}).Debug("Live reply not applied")
		return
	}
	s.notify()
}
