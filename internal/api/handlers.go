package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatrelay/internal/agent"
	"chatrelay/internal/chat"
	"chatrelay/internal/imagegen"
	"chatrelay/internal/models"
	"chatrelay/internal/store"
)

const (
	defaultTurnTimeout = 2 * time.Minute
	maxImageBytes      = 10 << 20
)

// Version is reported by the version endpoint.
const Version = "1.0.0"

// Handler wires HTTP routes to the store, the turn orchestrator and the
// image service.
type Handler struct {
	store       *store.Store
	orch        *chat.Orchestrator
	images      *imagegen.Client
	turnTimeout time.Duration
}

// NewHandler constructs a Handler. images may be nil when no image API is
// configured; the image routes then answer 503.
func NewHandler(st *store.Store, orch *chat.Orchestrator, images *imagegen.Client, turnTimeout time.Duration) *Handler {
	if turnTimeout <= 0 {
		turnTimeout = defaultTurnTimeout
	}
	return &Handler{
		store:       st,
		orch:        orch,
		images:      images,
		turnTimeout: turnTimeout,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/chat/stream", h.chatStream)
	api.POST("/chat/message", h.chatMessage)
	api.GET("/chat/history/:id", h.chatHistory)
	api.GET("/chat/raw/:id", h.chatRaw)

	api.GET("/sessions", h.listSessions)
	api.POST("/sessions", h.createSession)
	api.PUT("/sessions/:id", h.updateSession)
	api.DELETE("/sessions/:id", h.deleteSession)

	api.GET("/config", h.allConfigs)
	api.GET("/config/:key", h.getConfig)
	api.POST("/config", h.saveConfig)

	api.POST("/web/extract", h.webExtract)
	api.POST("/web/summarize", h.webSummarize)
	api.POST("/web/to-json", h.webToJSON)

	api.POST("/image/analyze", h.analyzeImage)
	api.POST("/draw", h.draw)
	api.GET("/draw/history", h.drawHistory)

	api.GET("/health", h.health)
	api.GET("/version", h.version)
}

// ndjsonSink writes protocol frames as newline-delimited JSON, flushing
// after every frame.
type ndjsonSink struct {
	w       gin.ResponseWriter
	flusher http.Flusher
}

func (s *ndjsonSink) Emit(f chat.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (h *Handler) newStreamSink(c *gin.Context) (*ndjsonSink, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return nil, false
	}
	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	return &ndjsonSink{w: c.Writer, flusher: flusher}, true
}

// chat

type chatStreamRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *Handler) chatStream(c *gin.Context) {
	var req chatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SessionID == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and message are required"})
		return
	}
	if _, err := h.store.GetSession(c.Request.Context(), req.SessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	sink, ok := h.newStreamSink(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.turnTimeout)
	defer cancel()
	if err := h.orch.StreamTurn(ctx, req.SessionID, req.Message, sink); err != nil {
		log.Printf("chat stream failed: %v", err)
	}
}

func (h *Handler) chatMessage(c *gin.Context) {
	prompt := c.PostForm("prompt")
	sessionID := c.PostForm("session_id")
	if prompt == "" || sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt and session_id are required"})
		return
	}
	if _, err := h.store.GetSession(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.turnTimeout)
	defer cancel()
	output, err := h.orch.Turn(ctx, sessionID, prompt)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response":  output,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) chatHistory(c *gin.Context) {
	sessionID := c.Param("id")
	messages, err := h.store.ChatMessages(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
	})
}

// chatRaw replays the raw journal converted to display entries. A journal
// holding messages with no display form is a server-side invariant break.
func (h *Handler) chatRaw(c *gin.Context) {
	sessionID := c.Param("id")
	batches, err := h.store.Messages(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	entries, err := agent.ToChatEntries(batches)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   entries,
	})
}

// sessions

func (h *Handler) listSessions(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	sessions, err := h.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type createSessionRequest struct {
	Title string `json:"title"`
	Mode  string `json:"mode"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sessionID := uuid.NewString()
	session, err := h.store.CreateSession(c.Request.Context(), sessionID, req.Title, req.Mode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"title":      session.Title,
		"mode":       session.Mode,
	})
}

type updateSessionRequest struct {
	Title string `json:"title"`
}

func (h *Handler) updateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.store.UpdateSession(c.Request.Context(), c.Param("id"), req.Title); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session updated"})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.store.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted"})
}

// config

func (h *Handler) allConfigs(c *gin.Context) {
	configs, err := h.store.AllConfigs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

func (h *Handler) getConfig(c *gin.Context) {
	key := c.Param("key")
	value, err := h.store.Config(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "config not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

type configRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *Handler) saveConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if err := h.store.SetConfig(c.Request.Context(), req.Key, req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Config saved"})
}

// web

type webRequest struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (h *Handler) webExtract(c *gin.Context) {
	var req webRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.URL == "" && req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either url or content is required"})
		return
	}
	entry, err := h.orch.ExtractPage(c.Request.Context(), req.URL, req.Content)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"title":   entry.Title,
		"content": entry.Content,
		"url":     entry.URL,
	})
}

func (h *Handler) webSummarize(c *gin.Context) {
	h.webStream(c, h.orch.StreamSummary)
}

func (h *Handler) webToJSON(c *gin.Context) {
	h.webStream(c, h.orch.StreamJSON)
}

func (h *Handler) webStream(c *gin.Context, stream func(context.Context, string, string, chat.Sink) error) {
	var req webRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.URL == "" && req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either url or content is required"})
		return
	}

	sink, ok := h.newStreamSink(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.turnTimeout)
	defer cancel()
	if err := stream(ctx, req.URL, req.Content, sink); err != nil {
		log.Printf("web stream failed: %v", err)
	}
}

// images

func (h *Handler) analyzeImage(c *gin.Context) {
	if h.images == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image service not configured"})
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if file.Size > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}
	prompt := c.PostForm("prompt")
	if prompt == "" {
		prompt = "Describe this image."
	}
	sessionID := c.PostForm("session_id")

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image"})
		return
	}
	defer src.Close()
	content, err := io.ReadAll(io.LimitReader(src, maxImageBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image"})
		return
	}

	analysis, err := h.images.Analyze(c.Request.Context(), prompt, content)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if sessionID != "" {
		h.appendImageTurn(c.Request.Context(), sessionID,
			"📷 "+prompt,
			models.ChatMessage{Role: models.RoleAssistant, Content: analysis, ContentType: models.ContentText},
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"filename": file.Filename,
		"analysis": analysis,
		"prompt":   prompt,
	})
}

type drawRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	Size      string `json:"size"`
	Quality   string `json:"quality"`
}

func (h *Handler) draw(c *gin.Context) {
	if h.images == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image service not configured"})
		return
	}
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	imageURL, err := h.images.Generate(c.Request.Context(), imagegen.GenerateRequest{
		Prompt:  req.Prompt,
		Model:   req.Model,
		Size:    req.Size,
		Quality: req.Quality,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.store.AddDrawRecord(ctx, req.Prompt, imageURL, req.Model, req.Size); err != nil {
		log.Printf("save draw history failed: %v", err)
	}
	if req.SessionID != "" {
		h.appendImageTurn(ctx, req.SessionID,
			"🎨 "+req.Prompt,
			models.ChatMessage{
				Role:        models.RoleAssistant,
				Content:     "Generated an image for prompt: " + req.Prompt,
				ContentType: models.ContentImage,
				ImageURL:    imageURL,
			},
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"image_url": imageURL,
		"prompt":    req.Prompt,
		"model":     req.Model,
	})
}

// appendImageTurn mirrors the chat commit order for image interactions:
// user row, assistant row, then the session timestamp.
func (h *Handler) appendImageTurn(ctx context.Context, sessionID, userContent string, assistant models.ChatMessage) {
	if err := h.store.AddChatMessage(ctx, sessionID, models.RoleUser, userContent, models.ContentText, ""); err != nil {
		log.Printf("append user row for session %s failed: %v", sessionID, err)
		return
	}
	if err := h.store.AddChatMessage(ctx, sessionID, assistant.Role, assistant.Content, assistant.ContentType, assistant.ImageURL); err != nil {
		log.Printf("append assistant row for session %s failed: %v", sessionID, err)
		return
	}
	if err := h.store.TouchSession(ctx, sessionID); err != nil {
		log.Printf("touch session %s failed: %v", sessionID, err)
	}
}

func (h *Handler) drawHistory(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	records, err := h.store.DrawHistory(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// misc

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": Version})
}
