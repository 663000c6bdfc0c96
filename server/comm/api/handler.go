package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"matri_server/server/comm/domain"
	"matri_server/server/comm/service"
	commonauth "matri_server/server/common/auth"
	"matri_server/server/common/middleware"
)

type Handler struct {
	gateway  *service.Gateway
	realtime *service.RealtimeService
	blobs    service.BlobStore
	auth     *commonauth.Service
}

func NewHandler(gateway *service.Gateway, realtime *service.RealtimeService, blobs service.BlobStore, auth *commonauth.Service) *Handler {
	return &Handler{gateway: gateway, realtime: realtime, blobs: blobs, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, NewHealthResponse("ok")) })
	r.GET("/ws", h.handleWS)
	r.GET("/media/*objectKey", h.serveMedia)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.POST("/chat/messages", h.sendText)
		api.POST("/chat/messages/media", h.sendMedia)
		api.GET("/chat/messages/:friendId", h.listChat)
		api.GET("/chat/conversations", h.listConversations)
		api.GET("/chat/users/:userId", h.getChatUser)
		api.PUT("/chat/messages/:messageId", h.editMessage)
		api.DELETE("/chat/messages/:messageId", h.deleteMessage)
	}
}

func (h *Handler) handleWS(c *gin.Context) {
	// Identity is optional at upgrade time; an authenticated token pins
	// the announced identity, an anonymous connection can only listen.
	authUserID := ""
	if token, ok := wsAccessToken(c); ok {
		userID, err := h.auth.ParseUserID(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, NewErrorResponse("invalid token"))
			return
		}
		authUserID = userID
	}
	h.realtime.HandleWS(c, authUserID)
}

func wsAccessToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			return token, true
		}
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return "", false
	}
	return token, true
}

func (h *Handler) sendText(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(ErrUnauthorized))
		return
	}
	var req struct {
		ReceiverID string `json:"receiver_id" binding:"required"`
		Content    string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	msg, err := h.gateway.SendText(c.Request.Context(), actorID, req.ReceiverID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) sendMedia(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(ErrUnauthorized))
		return
	}
	receiverID := strings.TrimSpace(c.PostForm("receiver_id"))
	content := c.PostForm("content")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	files := form.File["media"]

	uploads := make([]service.MediaUpload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
			return
		}
		defer f.Close()
		uploads = append(uploads, service.MediaUpload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Reader:      f,
		})
	}

	msg, err := h.gateway.SendMedia(c.Request.Context(), actorID, receiverID, content, uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) listChat(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(ErrUnauthorized))
		return
	}
	friendID := c.Param("friendId")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	messages, total, err := h.gateway.ListChat(c.Request.Context(), actorID, friendID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewChatPageResponse(messages, total, page, pageSize))
}

func (h *Handler) listConversations(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(ErrUnauthorized))
		return
	}
	conversations, err := h.gateway.ListConversations(c.Request.Context(), actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewConversationsResponse(conversations))
}

func (h *Handler) getChatUser(c *gin.Context) {
	if _, err := actorFromContext(c); err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(ErrUnauthorized))
		return
	}
	user, err := h.gateway.GetChatUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) editMessage(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(ErrUnauthorized))
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	msg, err := h.gateway.EditMessage(c.Request.Context(), actorID, c.Param("messageId"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) deleteMessage(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(ErrUnauthorized))
		return
	}
	if err := h.gateway.DeleteMessage(c.Request.Context(), actorID, c.Param("messageId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOKResponse())
}

func (h *Handler) serveMedia(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("objectKey"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse("object key required"))
		return
	}
	u, err := h.blobs.PresignGet(c.Request.Context(), key, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusNotFound, NewErrorResponse("media not found"))
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, u)
}

// statusForError maps the gateway's failure taxonomy onto HTTP status
// codes. Everything unrecognized is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrPlanForbidden), errors.Is(err, domain.ErrPolicyViolation):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), NewErrorResponse(err.Error()))
}

func actorFromContext(c *gin.Context) (string, error) {
	rawID, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return "", errors.New(ErrUnauthorized)
	}
	userID, ok := rawID.(string)
	if !ok || userID == "" {
		return "", errors.New(ErrUnauthorized)
	}
	return userID, nil
}
