package fakeservice

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"commenthub/internal/render"
	"commenthub/pkg/models"
)

var mediaTypes = map[string]string{
	".txt":  "text/plain",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

const (
	maxTextUpload  = 100 * 1024
	maxImageUpload = 5 * 1024 * 1024
)

// setupRoutes registers the comment service's routes
func (s *Service) setupRoutes() {
	r := s.router

	r.POST("/token/", s.obtainToken)
	r.POST("/token/refresh/", s.refreshToken)
	r.POST("/user/register/", s.register)
	r.GET("/user/me/", s.authMiddleware(true), s.me)

	comments := r.Group("/comments")
	{
		comments.GET("/", s.authMiddleware(false), s.listComments)
		comments.POST("/", s.authMiddleware(true), s.createComment)
		comments.GET("/health/", s.health)
		comments.GET("/preview/", s.authMiddleware(false), s.listPreviews)
		comments.POST("/preview-text/", s.authMiddleware(true), s.previewText)
		comments.GET("/:id/", s.authMiddleware(false), s.getComment)
	}

	r.GET("/media/:name", s.serveFile)
	r.GET("/ws/comments/:id/", s.handleLive)
}

func (s *Service) obtainToken(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	user, err := s.checkPassword(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": err.Error()})
		return
	}
	tokens, err := s.IssueTokens(user.ID, s.opts.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (s *Service) refreshToken(c *gin.Context) {
	s.mu.Lock()
	s.refreshHits++
	down := s.refreshDown
	s.mu.Unlock()
	if down {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "token service unavailable"})
		return
	}

	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Refresh == "" {
		c.JSON(http.StatusBadRequest, gin.H{"refresh": []string{"This field is required."}})
		return
	}
	user, err := s.validate(req.Refresh, tokenRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": err.Error()})
		return
	}

	access, err := s.sign(user.ID, tokenAccess, s.opts.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	resp := models.TokenPair{Access: access}
	if s.opts.RotateRefresh {
		if resp.Refresh, err = s.sign(user.ID, tokenRefresh, s.opts.RefreshTTL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	if req.Password != req.Password2 {
		c.JSON(http.StatusBadRequest, gin.H{"password": []string{"Password fields didn't match."}})
		return
	}
	user, err := s.AddUser(req.Username, req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"username": []string{"A user with that username already exists."}})
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Service) me(c *gin.Context) {
	s.mu.Lock()
	down := s.profileDown
	s.mu.Unlock()
	if down {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "profile service unavailable"})
		return
	}
	user, _ := currentUser(c)
	c.JSON(http.StatusOK, user)
}

func (s *Service) health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthStatus{Status: "ok"})
}

func (s *Service) listComments(c *gin.Context) {
	ordering := c.DefaultQuery("ordering", models.DefaultOrdering)
	if !models.ValidOrdering(ordering) {
		ordering = models.DefaultOrdering
	}
	search := strings.ToLower(c.Query("search"))

	s.mu.Lock()
	top := make([]*models.Comment, 0)
	for _, cm := range s.comments {
		if !cm.IsTopLevel() {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(cm.Author.Username), search) &&
			!strings.Contains(strings.ToLower(cm.Author.Email), search) {
			continue
		}
		top = append(top, cm.Clone())
	}
	s.mu.Unlock()

	sortComments(top, ordering)
	bounds, next, prev, ok := s.paginate(c, len(top))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Invalid page."})
		return
	}
	c.JSON(http.StatusOK, models.CommentPage{
		Count:    len(top),
		Next:     next,
		Previous: prev,
		Results:  top[bounds[0]:bounds[1]],
	})
}

func (s *Service) listPreviews(c *gin.Context) {
	s.mu.Lock()
	previews := make([]models.CommentPreview, 0)
	for _, cm := range s.comments {
		if cm.IsTopLevel() {
			previews = append(previews, models.CommentPreview{ID: cm.ID, Text: cm.Text, CreatedAt: cm.CreatedAt})
		}
	}
	s.mu.Unlock()

	sort.SliceStable(previews, func(i, j int) bool {
		return previews[i].CreatedAt.After(previews[j].CreatedAt)
	})
	bounds, next, prev, ok := s.paginate(c, len(previews))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Invalid page."})
		return
	}
	c.JSON(http.StatusOK, models.PreviewPage{
		Count:    len(previews),
		Next:     next,
		Previous: prev,
		Results:  previews[bounds[0]:bounds[1]],
	})
}

// paginate resolves ?page= into slice bounds and neighbour links
func (s *Service) paginate(c *gin.Context, total int) ([2]int, *string, *string, bool) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			return [2]int{}, nil, nil, false
		}
		page = p
	}
	size := s.opts.PageSize
	start := (page - 1) * size
	if start > 0 && start >= total {
		return [2]int{}, nil, nil, false
	}
	end := start + size
	if end > total {
		end = total
	}

	link := func(p int) *string {
		q := c.Request.URL.Query()
		q.Set("page", strconv.Itoa(p))
		u := url.URL{Scheme: "http", Host: c.Request.Host, Path: c.Request.URL.Path, RawQuery: q.Encode()}
		out := u.String()
		return &out
	}
	var next, prev *string
	if end < total {
		next = link(page + 1)
	}
	if page > 1 {
		prev = link(page - 1)
	}
	return [2]int{start, end}, next, prev, true
}

func sortComments(list []*models.Comment, ordering string) {
	desc := strings.HasPrefix(ordering, "-")
	key := strings.TrimPrefix(ordering, "-")
	less := func(a, b *models.Comment) bool {
		switch key {
		case models.OrderUsername:
			return a.Author.Username < b.Author.Username
		case models.OrderEmail:
			return a.Author.Email < b.Author.Email
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if desc {
			return less(list[j], list[i])
		}
		return less(list[i], list[j])
	})
}

func (s *Service) getComment(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cm := s.findLocked(id)
	if cm == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	c.JSON(http.StatusOK, s.treeLocked(cm))
}

func (s *Service) createComment(c *gin.Context) {
	user, _ := currentUser(c)

	text := strings.TrimSpace(c.PostForm("text"))
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"text": []string{"This field is required."}})
		return
	}
	if c.PostForm("recaptcha_token") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"recaptcha_token": []string{"reCAPTCHA verification failed."}})
		return
	}

	var parentID *int64
	if raw := c.PostForm("reply"); raw != "" {
		id, ok := parseID(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"reply": []string{"Incorrect type."}})
			return
		}
		parentID = &id
	}

	type upload struct {
		name, mediaType string
		content         []byte
	}
	var uploads []upload
	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File["files"] {
			ext := strings.ToLower(filepath.Ext(fh.Filename))
			mediaType, allowed := mediaTypes[ext]
			if !allowed {
				c.JSON(http.StatusBadRequest, gin.H{"files": []string{fmt.Sprintf("File %s has invalid format.", fh.Filename)}})
				return
			}
			limit := int64(maxImageUpload)
			if ext == ".txt" {
				limit = maxTextUpload
			}
			if fh.Size > limit {
				c.JSON(http.StatusBadRequest, gin.H{"files": []string{fmt.Sprintf("File %s is too big.", fh.Filename)}})
				return
			}
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"files": []string{err.Error()}})
				return
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"files": []string{err.Error()}})
				return
			}
			uploads = append(uploads, upload{name: filepath.Base(fh.Filename), mediaType: mediaType, content: content})
		}
	}

	s.mu.Lock()
	if parentID != nil && s.findLocked(*parentID) == nil {
		s.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"reply": []string{fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *parentID)}})
		return
	}
	var attachments []models.Attachment
	for _, up := range uploads {
		name := fmt.Sprintf("%d_%s", s.nextFileID, up.name)
		s.files[name] = storedFile{mediaType: up.mediaType, content: up.content}
		ref := url.URL{Scheme: "http", Host: c.Request.Host, Path: "/media/" + name}
		attachments = append(attachments, models.Attachment{ID: s.nextFileID, FileRef: ref.String(), MediaType: up.mediaType})
		s.nextFileID++
	}
	created := s.insertLocked(*user, render.Sanitize(text), parentID, attachments)
	var rootID int64
	if parentID != nil {
		rootID = s.rootOfLocked(s.findLocked(created.ID)).ID
	}
	s.mu.Unlock()

	if parentID != nil {
		s.Publish(rootID, created)
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Service) previewText(c *gin.Context) {
	var req models.TextPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"text": []string{"This field is required."}})
		return
	}
	c.JSON(http.StatusOK, models.TextPreview{Text: render.Sanitize(req.Text)})
}

func (s *Service) serveFile(c *gin.Context) {
	s.mu.Lock()
	f, ok := s.files[c.Param("name")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	c.Data(http.StatusOK, f.mediaType, f.content)
}
