// Package api exposes the HTTP surface: the inbound event hook used by
// the platform bridge and the admin endpoints.
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"anonchat/internal/audit"
	"anonchat/internal/dialog"
	"anonchat/internal/store"
	"anonchat/internal/worker"
)

// broadcastConcurrency bounds parallel outbound sends during a broadcast.
const broadcastConcurrency = 8

type EventEngine interface {
	HandleEvent(ctx context.Context, ev dialog.Event)
}

type Submitter interface {
	Submit(worker.Job) error
}

// Handler wires HTTP routes to the dialog engine and the admin surface.
type Handler struct {
	engine    EventEngine
	store     *store.Store
	jobs      Submitter
	transport dialog.Transport
	audit     *audit.Logger
	adminIDs  map[int64]struct{}
}

// NewHandler constructs a Handler instance.
func NewHandler(engine EventEngine, st *store.Store, jobs Submitter, tr dialog.Transport, auditLog *audit.Logger, adminIDs []int64) *Handler {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	if auditLog == nil {
		auditLog = audit.New(nil)
	}
	return &Handler{
		engine:    engine,
		store:     st,
		jobs:      jobs,
		transport: tr,
		audit:     auditLog,
		adminIDs:  admins,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/chat/event", h.chatEvent)

	admin := api.Group("/admin")
	admin.Use(h.requireAdmin())
	admin.GET("/stats", h.stats)
	admin.POST("/broadcast", h.broadcast)
}

// requireAdmin trusts the platform bridge to assert the caller's
// identity, mirroring how the messaging platform authenticates users.
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader("X-Admin-ID"), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		if _, ok := h.adminIDs[id]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

func (h *Handler) chatEvent(c *gin.Context) {
	var ev dialog.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if ev.UserID <= 0 || ev.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and text are required"})
		return
	}

	err := h.jobs.Submit(worker.Job{
		UserID: ev.UserID,
		Run: func(ctx context.Context) {
			h.engine.HandleEvent(ctx, ev)
		},
	})
	if err != nil {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Stats())
}

type broadcastRequest struct {
	Text string `json:"text"`
}

// broadcast fans the text out to every registered user. Per-user
// failures are counted, never fatal.
func (h *Handler) broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	var delivered, failed int64
	g := new(errgroup.Group)
	g.SetLimit(broadcastConcurrency)
	for _, userID := range h.store.AllUserIDs() {
		userID := userID
		g.Go(func() error {
			if err := h.transport.SendMessage(c.Request.Context(), userID, req.Text, nil); err != nil {
				atomic.AddInt64(&failed, 1)
				return nil
			}
			atomic.AddInt64(&delivered, 1)
			return nil
		})
	}
	g.Wait()

	h.audit.Broadcast(int(delivered), int(failed))
	c.JSON(http.StatusOK, gin.H{"delivered": delivered, "failed": failed})
}
