// Package fakeservice is an in-process stand-in for the comment service.
// It issues real HS256 tokens, stores users and comments in memory, and pushes
// new replies over websockets, so client packages can be tested end to end.
package fakeservice

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"commenthub/pkg/models"
)

var (
	errInvalidCredentials = errors.New("no active account found with the given credentials")
	errInvalidToken       = errors.New("token is invalid or expired")
)

// Token types carried in the token_type claim
const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

// Options tune the fake
type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	PageSize   int
	// RotateRefresh makes the refresh endpoint return a new refresh token
	RotateRefresh bool
}

type account struct {
	user         models.User
	passwordHash []byte
}

type storedFile struct {
	mediaType string
	content   []byte
}

// Service is the fake comment service
type Service struct {
	opts   Options
	secret []byte
	router *gin.Engine
	hub    *hub

	mu          sync.Mutex
	accounts    map[string]*account
	comments    []*models.Comment
	files       map[string]storedFile
	nextUserID  int64
	nextID      int64
	nextFileID  int64
	profileDown bool
	refreshDown bool
	refreshHits int
	now         func() time.Time
}

type tokenClaims struct {
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// New creates a fake service with no users and no comments
func New(opts Options) *Service {
	if opts.Secret == "" {
		opts.Secret = "fake-secret"
	}
	if opts.AccessTTL == 0 {
		opts.AccessTTL = 5 * time.Minute
	}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if opts.PageSize == 0 {
		opts.PageSize = 25
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Service{
		opts:       opts,
		secret:     []byte(opts.Secret),
		router:     gin.New(),
		hub:        newHub(),
		accounts:   make(map[string]*account),
		files:      make(map[string]storedFile),
		nextUserID: 1,
		nextID:     1,
		nextFileID: 1,
		now:        time.Now,
	}
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger())
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler to mount in an httptest server
func (s *Service) Handler() http.Handler {
	return s.router
}

// Close disconnects every live subscriber
func (s *Service) Close() {
	s.hub.closeAll()
}

// AddUser creates an account directly
func (s *Service) AddUser(username, email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[username]; exists {
		return nil, fmt.Errorf("username %s already taken", username)
	}
	created := s.now().UTC()
	acc := &account{
		user: models.User{
			ID:        s.nextUserID,
			Username:  username,
			Email:     email,
			CreatedAt: &created,
		},
		passwordHash: hash,
	}
	s.nextUserID++
	s.accounts[username] = acc
	u := acc.user
	return &u, nil
}

// SetProfileAvailable makes GET /user/me/ fail with 503 when false
func (s *Service) SetProfileAvailable(ok bool) {
	s.mu.Lock()
	s.profileDown = !ok
	s.mu.Unlock()
}

// SetRefreshAvailable makes POST /token/refresh/ fail with 503 when false
func (s *Service) SetRefreshAvailable(ok bool) {
	s.mu.Lock()
	s.refreshDown = !ok
	s.mu.Unlock()
}

// RefreshCount returns how many refresh requests were received
func (s *Service) RefreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshHits
}

// SubscriberCount returns the live subscribers of a root comment
func (s *Service) SubscriberCount(rootID int64) int {
	return s.hub.count(rootID)
}

// IssueTokens mints a pair for an existing user. The access token expires after ttl.
func (s *Service) IssueTokens(userID int64, ttl time.Duration) (*models.TokenPair, error) {
	access, err := s.sign(userID, tokenAccess, ttl)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(userID, tokenRefresh, s.opts.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *Service) sign(userID int64, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := tokenClaims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// validate verifies signature, expiry, and type, and returns the owning user
func (s *Service) validate(raw, wantType string) (*models.User, error) {
	token, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, errInvalidToken
	}
	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.TokenType != wantType {
		return nil, errInvalidToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.ID == claims.UserID {
			u := acc.user
			return &u, nil
		}
	}
	return nil, errInvalidToken
}

func (s *Service) checkPassword(username, password string) (*models.User, error) {
	s.mu.Lock()
	acc, ok := s.accounts[username]
	s.mu.Unlock()
	if !ok {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	u := acc.user
	return &u, nil
}

// Seed stores a comment as if posted by author and returns it. It does not
// notify live subscribers.
func (s *Service) Seed(author *models.User, text string, parentID *int64) *models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(*author, text, parentID, nil)
}

func (s *Service) insertLocked(author models.User, text string, parentID *int64, attachments []models.Attachment) *models.Comment {
	// strictly increasing timestamps keep created_at ordering deterministic
	created := s.now().UTC().Add(time.Duration(s.nextID) * time.Millisecond)
	c := &models.Comment{
		ID:          s.nextID,
		Author:      author,
		Text:        text,
		CreatedAt:   created,
		UpdatedAt:   created,
		ParentID:    parentID,
		Attachments: attachments,
	}
	s.nextID++
	s.comments = append(s.comments, c)
	return c.Clone()
}

func (s *Service) findLocked(id int64) *models.Comment {
	for _, c := range s.comments {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// rootOfLocked walks parent links up to the top-level ancestor
func (s *Service) rootOfLocked(c *models.Comment) *models.Comment {
	for c != nil && c.ParentID != nil {
		parent := s.findLocked(*c.ParentID)
		if parent == nil {
			return c
		}
		c = parent
	}
	return c
}

// treeLocked returns a copy of c with its full reply subtree, oldest first
func (s *Service) treeLocked(c *models.Comment) *models.Comment {
	out := c.Clone()
	for _, child := range s.comments {
		if child.ParentID != nil && *child.ParentID == c.ID {
			out.Replies = append(out.Replies, s.treeLocked(child))
		}
	}
	return out
}

// Publish pushes a new_reply message to subscribers of rootID
func (s *Service) Publish(rootID int64, c *models.Comment) {
	s.hub.broadcastReply(rootID, c)
}

// PublishRaw pushes an arbitrary frame to subscribers of rootID
func (s *Service) PublishRaw(rootID int64, frame []byte) {
	s.hub.broadcast(rootID, frame)
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}
