package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/auth"
	"github.com/dkeye/relay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const userKey = "relay_user"

type handlers struct {
	orch *orch.Orchestrator
	auth auth.Authenticator
}

type LoginRequest struct {
	UserID string `json:"user_id"`
}

type MemberRequest struct {
	Role domain.Role `json:"role"`
}

func (h *handlers) health(c *gin.Context) {
	conns, users := h.orch.Registry.Counts()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": conns,
		"users":       users,
		"calls":       h.orch.Calls.Active(),
	})
}

// login binds a user id to the session without any credential check. Only
// mounted when dev login is enabled.
func (h *handlers) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid user_id"})
		return
	}
	user, err := domain.ParseUserID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := auth.Login(c, user); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": user})
}

func (h *handlers) logout(c *gin.Context) {
	if err := auth.Logout(c); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("logout")
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) requireUser(c *gin.Context) {
	user, err := h.auth.Identify(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func currentUser(c *gin.Context) domain.UserID {
	u, _ := c.Get(userKey)
	user, _ := u.(domain.UserID)
	return user
}

func (h *handlers) presence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.orch.OnlineUsers()})
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ice_servers": h.orch.ICEServers()})
}

func (h *handlers) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *handlers) roomConnections(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "connections": h.orch.Rooms.Count(room)})
}

func (h *handlers) roomMessages(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	if err := h.orch.Gate.Authorize(c.Request.Context(), currentUser(c), room); err != nil {
		writeError(c, err)
		return
	}
	msgs, err := h.orch.Chat.History(c.Request.Context(), room, limitParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "messages": msgs})
}

func (h *handlers) grantMember(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	user, err := domain.ParseUserID(c.Param("user"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req MemberRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	switch req.Role {
	case "", domain.RoleMember, domain.RoleAdmin:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if err := h.orch.GrantMembership(c.Request.Context(), currentUser(c), room, user, req.Role); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) callHistory(c *gin.Context) {
	calls, err := h.orch.CallHistory(c.Request.Context(), currentUser(c), limitParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

func roomParam(c *gin.Context) (domain.RoomID, bool) {
	room, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return room, true
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return n
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, app.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
}
