package http

import (
	"net/http"

	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallbackHandler is the HTTP surface the external playback backend calls to
// acknowledge events. Each acknowledgement resolves exactly one pending
// command inside a room actor via its ackID.
type CallbackHandler struct {
	rooms  ports.RoomService
	logger *zap.SugaredLogger
}

func NewCallbackHandler(rooms ports.RoomService, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		rooms:  rooms,
		logger: logger.Sugar(),
	}
}

func (h *CallbackHandler) SetupRoutes(router *gin.Engine, callbackAuth gin.HandlerFunc) {
	callbacks := router.Group("/callbacks", callbackAuth)
	{
		callbacks.POST("/room-creation-acknowledged", h.ack)
		callbacks.POST("/room-closure-acknowledged", h.ack)
		callbacks.POST("/join-acknowledged", h.ack)
		callbacks.POST("/leave-acknowledged", h.ack)
		callbacks.POST("/play-acknowledged", h.ack)
		callbacks.POST("/pause-acknowledged", h.ack)
		callbacks.POST("/skip-acknowledged", h.ack)
		callbacks.POST("/suggest-acknowledged", h.ack)
		callbacks.POST("/suggest-acknowledged/failure", h.nack)
		callbacks.POST("/vote-acknowledged", h.ack)
		callbacks.POST("/vote-acknowledged/failure", h.nack)
		callbacks.POST("/delegation-acknowledged", h.ack)
		callbacks.POST("/permission-acknowledged", h.ack)

		callbacks.POST("/user-length-update", h.UserLengthUpdate)
		callbacks.POST("/constraint-update", h.ConstraintUpdate)
	}
}

type ackRequest struct {
	AckID  domain.AckID  `json:"ackId" binding:"required"`
	RoomID domain.RoomID `json:"roomId" binding:"required"`
}

func (h *CallbackHandler) ack(c *gin.Context) {
	h.resolve(c, true)
}

func (h *CallbackHandler) nack(c *gin.Context) {
	h.resolve(c, false)
}

func (h *CallbackHandler) resolve(c *gin.Context, ok bool) {
	var req ackRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.rooms.AcknowledgeExternalEvent(c.Request.Context(), req.RoomID, req.AckID, ok); err != nil {
		// A late ack for an already-resolved or closed room is not an error
		// worth surfacing to the backend; it just retries less.
		h.logger.Infow("acknowledgement not delivered",
			"room_id", req.RoomID,
			"ack_id", req.AckID,
			"ok", ok,
			"error", err,
		)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

type userLengthUpdateRequest struct {
	RoomID      domain.RoomID `json:"roomId" binding:"required"`
	UsersLength int           `json:"usersLength" binding:"min=0"`
}

func (h *CallbackHandler) UserLengthUpdate(c *gin.Context) {
	var req userLengthUpdateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.rooms.UpdateUsersLength(c.Request.Context(), req.RoomID, req.UsersLength); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type constraintUpdateRequest struct {
	RoomID domain.RoomID `json:"roomId" binding:"required"`
	Valid  bool          `json:"valid"`
}

func (h *CallbackHandler) ConstraintUpdate(c *gin.Context) {
	var req constraintUpdateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.rooms.UpdateTimeConstraint(c.Request.Context(), req.RoomID, req.Valid); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
