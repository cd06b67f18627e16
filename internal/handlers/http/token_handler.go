package http

import (
	"net/http"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"
	"carelink/internal/core/services"
	"carelink/internal/infrastructure/middleware"
	"carelink/internal/infrastructure/monitoring"
	"carelink/pkg/errors"
	"carelink/pkg/validation"

	"github.com/gin-gonic/gin"
)

// TokenHandler mints media-relay access tokens for call channels. The
// channel must follow the hub's call_{min}_{max} convention, the caller must
// be one of the two participants, and the pair must be an authorized care
// relationship.
type TokenHandler struct {
	tokens        *services.RTCTokenService
	relationships ports.RelationshipRepository
	metrics       *monitoring.PrometheusCollector // may be nil
}

func NewTokenHandler(tokens *services.RTCTokenService, relationships ports.RelationshipRepository, metrics *monitoring.PrometheusCollector) *TokenHandler {
	return &TokenHandler{
		tokens:        tokens,
		relationships: relationships,
		metrics:       metrics,
	}
}

func (h *TokenHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/rtc/token", h.MintToken)
}

type TokenRequest struct {
	ChannelName string `json:"channel_name" binding:"required,max=100"`
	TTLSeconds  int    `json:"ttl_seconds"`
	Subscriber  bool   `json:"subscriber"`
}

func (h *TokenHandler) MintToken(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := validation.ValidateChannelName(req.ChannelName); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if req.TTLSeconds != 0 {
		if err := validation.ValidateTokenTTL(req.TTLSeconds); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
	}

	a, b, err := validation.ChannelParticipants(req.ChannelName)
	if err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	if int64(userID) != a && int64(userID) != b {
		c.Error(errors.NewForbiddenError("caller is not a participant of this channel"))
		return
	}

	related, err := h.relationships.Exists(c.Request.Context(), domain.UserID(a), domain.UserID(b))
	if err != nil {
		c.Error(errors.NewInternalError("failed to check relationship"))
		return
	}
	if !related {
		c.Error(errors.NewForbiddenError("no relationship exists between channel participants"))
		return
	}

	minted, err := h.tokens.GenerateChannelToken(c.Request.Context(), req.ChannelName, uint32(userID), req.TTLSeconds, !req.Subscriber)
	if err != nil {
		c.Error(errors.NewInternalError("failed to mint token"))
		return
	}

	if h.metrics != nil {
		source := "minted"
		if minted.Cached {
			source = "cache"
		}
		h.metrics.RecordTokenMinted(source)
	}

	c.JSON(http.StatusOK, gin.H{
		"token":        minted.Token,
		"app_id":       minted.AppID,
		"uid":          minted.UID,
		"channel_name": minted.Channel,
		"expires_at":   minted.ExpiresAt.Unix(),
	})
}
