package trips

import (
	"net/http"
	"strconv"

	"busline/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Controller struct {
	service   Service
	validator *validator.Validate
}

func NewController(service Service) *Controller {
	return &Controller{
		service:   service,
		validator: validator.New(),
	}
}

// CreateTrip handles POST /api/v1/admin/trips
func (c *Controller) CreateTrip(ctx *gin.Context) {
	var req CreateTripRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	if err := c.validator.Struct(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	trip, err := c.service.CreateTrip(ctx.Request.Context(), req)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Trip created successfully", trip, nil)
}

// GetTrip handles GET /api/v1/trips/:id
func (c *Controller) GetTrip(ctx *gin.Context) {
	tripID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid trip ID", nil, nil)
		return
	}

	trip, err := c.service.GetTrip(ctx.Request.Context(), tripID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Trip retrieved successfully", trip, nil)
}

// ListTrips handles GET /api/v1/trips
func (c *Controller) ListTrips(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	trips, total, err := c.service.ListTrips(ctx.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Trips retrieved successfully", gin.H{
		"trips": trips,
		"total": total,
		"page":  page,
		"limit": limit,
	}, nil)
}
