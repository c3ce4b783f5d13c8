package tickets

import (
	"net/http"

	"busline/internal/shared/middleware"
	"busline/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// CancelTicket handles POST /api/v1/tickets/:id/cancel
func (c *Controller) CancelTicket(ctx *gin.Context) {
	ticketID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid ticket ID", nil, nil)
		return
	}

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	var req CancelTicketRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	ticket, err := c.service.Cancel(ctx.Request.Context(), userID, ticketID, req.Reason)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Ticket cancelled successfully", ticket.ToResponse(), nil)
}

// GetTicket handles GET /api/v1/tickets/:id
func (c *Controller) GetTicket(ctx *gin.Context) {
	ticketID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid ticket ID", nil, nil)
		return
	}

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	ticket, err := c.service.GetTicket(ctx.Request.Context(), ticketID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	if ticket.UserID != userID && ctx.GetString("user_role") != middleware.RoleAdmin {
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Ticket retrieved successfully", ticket.ToResponse(), nil)
}

// GetUserTickets handles GET /api/v1/users/tickets
func (c *Controller) GetUserTickets(ctx *gin.Context) {
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	tickets, err := c.service.ListByUser(ctx.Request.Context(), userID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	responses := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		responses = append(responses, t.ToResponse())
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Tickets retrieved successfully", responses, nil)
}

// MarkTripUsed handles POST /api/v1/admin/trips/:id/mark-used
func (c *Controller) MarkTripUsed(ctx *gin.Context) {
	tripID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid trip ID", nil, nil)
		return
	}

	updated, err := c.service.MarkUsedForTrip(ctx.Request.Context(), tripID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Trip tickets marked used", gin.H{"tickets_updated": updated}, nil)
}

// MarkTripExpired handles POST /api/v1/admin/trips/:id/mark-expired
func (c *Controller) MarkTripExpired(ctx *gin.Context) {
	tripID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid trip ID", nil, nil)
		return
	}

	result, err := c.service.MarkExpiredForTrip(ctx.Request.Context(), tripID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Trip tickets expired", result, nil)
}
