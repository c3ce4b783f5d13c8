package payments

import (
	"net/http"
	"strconv"

	"busline/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// HandleWebhook handles POST /api/v1/payments/webhook
//
// The gateway authenticates itself through the payload signature, not
// a JWT, so this route is unauthenticated. Replayed deliveries return
// 200 without re-applying.
func (c *Controller) HandleWebhook(ctx *gin.Context) {
	var payload WebhookPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid webhook payload", nil, err.Error())
		return
	}

	if err := c.service.VerifyWebhook(ctx.Request.Context(), payload); err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Webhook processed", nil, nil)
}

// GetPayment handles GET /api/v1/admin/payments/:orderCode
func (c *Controller) GetPayment(ctx *gin.Context) {
	orderCode, err := parseOrderCode(ctx)
	if err != nil {
		return
	}

	payment, err := c.service.GetByOrderCode(ctx.Request.Context(), orderCode)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Payment retrieved successfully", payment.ToResponse(), nil)
}

// CancelLink handles POST /api/v1/admin/payments/:orderCode/cancel
func (c *Controller) CancelLink(ctx *gin.Context) {
	orderCode, err := parseOrderCode(ctx)
	if err != nil {
		return
	}

	var req CancelLinkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	if err := c.service.CancelLink(ctx.Request.Context(), orderCode, req.Reason); err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Payment cancelled successfully", nil, nil)
}

// ProcessRefund handles POST /api/v1/admin/refunds/:orderCode/process
func (c *Controller) ProcessRefund(ctx *gin.Context) {
	orderCode, err := parseOrderCode(ctx)
	if err != nil {
		return
	}

	var req ProcessRefundRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	refund, err := c.service.ProcessRefund(ctx.Request.Context(), orderCode, req)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Refund processed successfully", refund.ToResponse(), nil)
}

// GetRefundsForPayment handles GET /api/v1/admin/payments/:orderCode/refunds
func (c *Controller) GetRefundsForPayment(ctx *gin.Context) {
	orderCode, err := parseOrderCode(ctx)
	if err != nil {
		return
	}

	refunds, err := c.service.GetRefundsForPayment(ctx.Request.Context(), orderCode)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	responses := make([]PaymentResponse, 0, len(refunds))
	for _, r := range refunds {
		responses = append(responses, r.ToResponse())
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Refunds retrieved successfully", responses, nil)
}

// ListRefunds handles GET /api/v1/admin/refunds
func (c *Controller) ListRefunds(ctx *gin.Context) {
	status := Status(ctx.DefaultQuery("status", ""))
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	refunds, total, err := c.service.ListRefunds(ctx.Request.Context(), status, limit, (page-1)*limit)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	responses := make([]PaymentResponse, 0, len(refunds))
	for _, r := range refunds {
		responses = append(responses, r.ToResponse())
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Refunds retrieved successfully", gin.H{
		"refunds": responses,
		"total":   total,
		"page":    page,
		"limit":   limit,
	}, nil)
}

func parseOrderCode(ctx *gin.Context) (int64, error) {
	orderCode, err := strconv.ParseInt(ctx.Param("orderCode"), 10, 64)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid order code", nil, nil)
		return 0, err
	}
	return orderCode, nil
}
