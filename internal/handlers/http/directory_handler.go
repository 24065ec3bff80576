package http

import (
	"fmt"
	"net/http"
	"strconv"

	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"
	"jamroom/pkg/cache"

	"github.com/gin-gonic/gin"
)

// DirectoryHandler serves the paginated room directory. Pages are cached
// briefly; the isInvited flag is computed per requester on top of the cached
// page so the cache stays user-agnostic.
type DirectoryHandler struct {
	summaries ports.SummaryRepository
	pageCache *cache.Cache
	perPage   int
}

type directoryEntry struct {
	RoomID      domain.RoomID `json:"roomId"`
	Name        string        `json:"name"`
	CreatorName string        `json:"creatorName"`
	IsOpen      bool          `json:"isOpen"`
	UsersLength int           `json:"usersLength"`
	IsInvited   bool          `json:"isInvited"`
}

type cachedPage struct {
	summaries []domain.RoomSummary
	total     int
}

func NewDirectoryHandler(summaries ports.SummaryRepository, pageCache *cache.Cache, perPage int) *DirectoryHandler {
	if perPage < 1 {
		perPage = 10
	}
	return &DirectoryHandler{
		summaries: summaries,
		pageCache: pageCache,
		perPage:   perPage,
	}
}

func (h *DirectoryHandler) SetupRoutes(router *gin.Engine, optionalAuth gin.HandlerFunc) {
	api := router.Group("/api/v1")
	{
		api.GET("/rooms", optionalAuth, h.ListRooms)
		api.GET("/rooms/:id", optionalAuth, h.GetRoom)
	}
}

func (h *DirectoryHandler) ListRooms(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	query := c.Query("q")

	summaries, total, err := h.loadPage(c, query, page)
	if err != nil {
		c.Error(err)
		return
	}

	userID := requesterID(c)
	entries := make([]directoryEntry, 0, len(summaries))
	for _, s := range summaries {
		entries = append(entries, directoryEntry{
			RoomID:      s.RoomID,
			Name:        s.Name,
			CreatorName: s.CreatorName,
			IsOpen:      s.IsOpen,
			UsersLength: s.UsersLength,
			IsInvited:   userID != "" && s.IsInvited(userID),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms":   entries,
		"total":   total,
		"page":    page,
		"perPage": h.perPage,
		"hasMore": page*h.perPage < total,
	})
}

func (h *DirectoryHandler) GetRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	summary, err := h.summaries.GetByID(c.Request.Context(), roomID)
	if err != nil {
		c.Error(err)
		return
	}

	userID := requesterID(c)
	c.JSON(http.StatusOK, gin.H{
		"room": directoryEntry{
			RoomID:      summary.RoomID,
			Name:        summary.Name,
			CreatorName: summary.CreatorName,
			IsOpen:      summary.IsOpen,
			UsersLength: summary.UsersLength,
			IsInvited:   userID != "" && summary.IsInvited(userID),
		},
	})
}

func (h *DirectoryHandler) loadPage(c *gin.Context, query string, page int) ([]domain.RoomSummary, int, error) {
	key := fmt.Sprintf("directory:%s:%d", query, page)
	if h.pageCache != nil {
		if cached, ok := h.pageCache.Get(key); ok {
			p := cached.(cachedPage)
			return p.summaries, p.total, nil
		}
	}

	summaries, total, err := h.summaries.Search(c.Request.Context(), query, page, h.perPage)
	if err != nil {
		return nil, 0, err
	}

	if h.pageCache != nil {
		h.pageCache.Set(key, cachedPage{summaries: summaries, total: total})
	}
	return summaries, total, nil
}

func requesterID(c *gin.Context) domain.UserID {
	val, exists := c.Get("user_id")
	if !exists {
		return ""
	}
	userID, ok := val.(domain.UserID)
	if !ok {
		return ""
	}
	return userID
}
