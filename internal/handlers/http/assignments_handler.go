package http

import (
	"net/http"
	"strconv"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"
	"carelink/internal/infrastructure/middleware"
	"carelink/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AssignmentsHandler manages the doctor→patient care assignments that gate
// all messaging and calling. Only doctors may change their own assignments.
type AssignmentsHandler struct {
	relationships ports.RelationshipRepository
	users         ports.UserRepository
	logger        *zap.SugaredLogger
}

func NewAssignmentsHandler(
	relationships ports.RelationshipRepository,
	users ports.UserRepository,
	logger *zap.SugaredLogger,
) *AssignmentsHandler {
	return &AssignmentsHandler{
		relationships: relationships,
		users:         users,
		logger:        logger,
	}
}

func (h *AssignmentsHandler) SetupRoutes(api *gin.RouterGroup) {
	assignments := api.Group("/assignments")
	assignments.Use(middleware.RequireRole(domain.RoleDoctor))
	assignments.POST("", h.CreateAssignment)
	assignments.DELETE("/:user_id", h.RemoveAssignment)
}

type AssignmentRequest struct {
	UserID int64 `json:"user_id" binding:"required,min=1"`
}

func (h *AssignmentsHandler) CreateAssignment(c *gin.Context) {
	callerID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req AssignmentRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	targetID := domain.UserID(req.UserID)
	if targetID == callerID {
		c.Error(errors.NewInvalidInputError("cannot assign yourself"))
		return
	}

	target, err := h.users.GetByID(c.Request.Context(), targetID)
	if err != nil {
		c.Error(errors.NewNotFoundError("user"))
		return
	}
	if target.Role != domain.RolePatient {
		c.Error(errors.NewInvalidInputError("assignments link a doctor to a patient"))
		return
	}

	if err := h.relationships.Assign(c.Request.Context(), callerID, targetID); err != nil {
		c.Error(errors.NewInternalError("failed to create assignment"))
		return
	}

	h.logger.Infow("care assignment created", "doctor_id", callerID, "patient_id", targetID)

	c.JSON(http.StatusCreated, gin.H{
		"doctor_id":  callerID,
		"patient_id": targetID,
	})
}

func (h *AssignmentsHandler) RemoveAssignment(c *gin.Context) {
	callerID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	targetID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || targetID <= 0 {
		c.Error(errors.NewInvalidInputError("invalid user id"))
		return
	}

	related, err := h.relationships.Exists(c.Request.Context(), callerID, domain.UserID(targetID))
	if err != nil {
		c.Error(errors.NewInternalError("failed to check assignment"))
		return
	}
	if !related {
		c.Error(errors.NewNotFoundError("assignment"))
		return
	}

	if err := h.relationships.Unassign(c.Request.Context(), callerID, domain.UserID(targetID)); err != nil {
		c.Error(errors.NewInternalError("failed to remove assignment"))
		return
	}

	h.logger.Infow("care assignment removed", "doctor_id", callerID, "patient_id", targetID)

	c.Status(http.StatusNoContent)
}
