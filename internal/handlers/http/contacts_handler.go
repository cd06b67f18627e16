package http

import (
	"net/http"

	"carelink/internal/core/ports"
	"carelink/internal/infrastructure/middleware"
	"carelink/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContactsHandler lists the caller's care-team contacts with their live
// presence, so clients can decide who is reachable before dialing.
type ContactsHandler struct {
	relationships ports.RelationshipRepository
	users         ports.UserRepository
	presence      ports.PresenceRegistry
	logger        *zap.SugaredLogger
}

func NewContactsHandler(
	relationships ports.RelationshipRepository,
	users ports.UserRepository,
	presence ports.PresenceRegistry,
	logger *zap.SugaredLogger,
) *ContactsHandler {
	return &ContactsHandler{
		relationships: relationships,
		users:         users,
		presence:      presence,
		logger:        logger,
	}
}

func (h *ContactsHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/contacts", h.ListContacts)
}

type Contact struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	IsOnline  bool   `json:"is_online"`
}

func (h *ContactsHandler) ListContacts(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	relatedIDs, err := h.relationships.RelatedIDs(c.Request.Context(), userID)
	if err != nil {
		c.Error(errors.NewInternalError("failed to list contacts"))
		return
	}

	contacts := make([]Contact, 0, len(relatedIDs))
	for _, relatedID := range relatedIDs {
		user, err := h.users.GetByID(c.Request.Context(), relatedID)
		if err != nil {
			// A dangling assignment edge should not break the whole listing.
			h.logger.Warnw("assigned user missing from directory", "user_id", relatedID, "error", err)
			continue
		}
		contacts = append(contacts, Contact{
			UserID:    int64(user.ID),
			Username:  user.Username,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Role:      string(user.Role),
			IsOnline:  h.presence.IsOnline(user.ID),
		})
	}

	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}
