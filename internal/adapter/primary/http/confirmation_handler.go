package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/splitledger/payment-confirm/internal/port/input"
)

// ConfirmationHandler is a primary adapter (HTTP handler)
type ConfirmationHandler struct {
	confirmations input.ConfirmationService
}

// NewConfirmationHandler creates a new confirmation handler
func NewConfirmationHandler(confirmations input.ConfirmationService) *ConfirmationHandler {
	return &ConfirmationHandler{
		confirmations: confirmations,
	}
}

// BeginOperationRequest represents the HTTP request to start a handoff
type BeginOperationRequest struct {
	Kind       string `json:"kind"`
	TargetID   string `json:"target_id,omitempty"`
	Amount     string `json:"amount"`
	ReturnPath string `json:"return_path"`
}

// BeginOperationResponse represents the HTTP response for a started handoff
type BeginOperationResponse struct {
	Reference   string `json:"reference"`
	ExternalURL string `json:"external_url"`
}

// OperationStatusResponse represents the HTTP response for operation status
type OperationStatusResponse struct {
	Reference       string `json:"reference"`
	Kind            string `json:"kind,omitempty"`
	State           string `json:"state"`
	OutcomeStatus   string `json:"outcome_status,omitempty"`
	AppliedEffectID string `json:"applied_effect_id,omitempty"`
	ResolvedAt      string `json:"resolved_at,omitempty"`
}

// BeginOperation handles handoff initiation
func (h *ConfirmationHandler) BeginOperation(c echo.Context) error {
	var req BeginOperationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	response, err := h.confirmations.Begin(c.Request().Context(), input.BeginRequest{
		Kind:       core.OperationKind(req.Kind),
		TargetID:   req.TargetID,
		Amount:     req.Amount,
		ReturnPath: req.ReturnPath,
	})
	if err != nil {
		if errors.Is(err, core.ErrInvalidOperation) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to start payment handoff",
		})
	}

	return c.JSON(http.StatusCreated, BeginOperationResponse{
		Reference:   response.Reference,
		ExternalURL: response.ExternalURL,
	})
}

// Return handles the gateway sending the user back. The reference arrives as
// a query parameter; a missing record is a no-op (the operation may have
// been resolved already in another session), not an error.
func (h *ConfirmationHandler) Return(c echo.Context) error {
	reference := c.QueryParam("reference")
	landing := "/"

	if reference != "" {
		op, err := h.confirmations.Resume(c.Request().Context(), reference)
		switch {
		case err == nil:
			landing = op.ReturnPath
		case errors.Is(err, core.ErrNoPendingOperation):
			// Nothing pending: fall through to the default landing page.
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "Failed to resume confirmation",
			})
		}
	}

	return c.Redirect(http.StatusSeeOther, landing)
}

// GetOperation handles operation status retrieval by reference
func (h *ConfirmationHandler) GetOperation(c echo.Context) error {
	reference := c.Param("reference")

	status, err := h.confirmations.GetStatus(c.Request().Context(), reference)
	if err != nil {
		if errors.Is(err, core.ErrNoPendingOperation) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "Operation not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to retrieve operation",
		})
	}

	response := OperationStatusResponse{
		Reference: status.Reference,
		Kind:      string(status.Kind),
		State:     string(status.State),
	}
	if status.Outcome != nil {
		response.OutcomeStatus = string(status.Outcome.Status)
		response.AppliedEffectID = status.Outcome.AppliedEffectID
		response.ResolvedAt = status.Outcome.ResolvedAt.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, response)
}
