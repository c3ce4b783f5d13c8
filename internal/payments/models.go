package payments

import (
	"time"

	"github.com/google/uuid"
)

// Payment tracks money moving in either direction. A refund is a
// Payment value with IsRefund set, carrying its own fresh order code
// and referencing the original payment via OriginalOrderCode; the two
// identifier spaces are never conflated.
type Payment struct {
	// OrderCode doubles as the primary key and the identifier shared
	// with the gateway (and, for non-refunds, with the owning booking).
	OrderCode   int64      `gorm:"primaryKey;autoIncrement:false" json:"order_code"`
	BookingID   *uuid.UUID `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	Amount      float64    `gorm:"not null" json:"amount"`
	Status      Status     `gorm:"type:varchar(20);not null;check:status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'CANCELLED', 'FAILED', 'RESOLVED')" json:"status"`
	Description string     `json:"description,omitempty"`
	CheckoutURL string     `json:"checkout_url,omitempty"`
	AdminNote   string     `json:"admin_note,omitempty"`

	// Refund variant fields
	IsRefund          bool       `gorm:"index;default:false" json:"is_refund"`
	OriginalOrderCode *int64     `gorm:"index" json:"original_order_code,omitempty"`
	RefundTicketID    *uuid.UUID `gorm:"type:uuid" json:"refund_ticket_id,omitempty"`
	RefundAmount      *float64   `json:"refund_amount,omitempty"`
	RefundReason      string     `json:"refund_reason,omitempty"`
	RefundRequestedAt *time.Time `json:"refund_requested_at,omitempty"`
	RefundProcessedAt *time.Time `json:"refund_processed_at,omitempty"`
	ProofImageURL     string     `json:"proof_image_url,omitempty"`
	ProofImageID      string     `json:"proof_image_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsPending() bool {
	return p.Status == StatusPending
}

func (p *Payment) IsCompleted() bool {
	return p.Status == StatusCompleted
}

func (p *Payment) IsProcessing() bool {
	return p.Status == StatusProcessing
}

// Refundable reports whether a refund may be created against this
// payment: completed, and not itself a refund.
func (p *Payment) Refundable() bool {
	return p.IsCompleted() && !p.IsRefund
}

// WebhookPayload is the gateway's payment-confirmation callback body.
// Delivery is at-least-once; verification must tolerate replays.
type WebhookPayload struct {
	Code      string      `json:"code"`
	Desc      string      `json:"desc"`
	Success   bool        `json:"success"`
	Data      WebhookData `json:"data"`
	Signature string      `json:"signature"`
}

// WebhookData carries the transaction details of a webhook callback
type WebhookData struct {
	OrderCode           int64   `json:"orderCode"`
	Amount              float64 `json:"amount"`
	Description         string  `json:"description"`
	Reference           string  `json:"reference"`
	TransactionDateTime string  `json:"transactionDateTime"`
	Code                string  `json:"code"`
	Desc                string  `json:"desc"`
}

// webhookSuccessCode is the gateway's code for a successful charge
const webhookSuccessCode = "00"

// CreateRefundInput describes a refund to be opened against a
// completed original payment. TicketID, when set, is the idempotency
// key for ticket-driven refunds: replayed cancellation events find the
// existing refund instead of opening a second one.
type CreateRefundInput struct {
	OriginalOrderCode int64
	Amount            float64
	Reason            string
	TicketID          *uuid.UUID
}

// ProcessRefundRequest is the admin action resolving a refund
type ProcessRefundRequest struct {
	ProofImageURL string `json:"proof_image_url" binding:"required"`
	ProofImageID  string `json:"proof_image_id" binding:"required"`
	AdminNote     string `json:"admin_note"`
}

// CancelLinkRequest is the admin action voiding a pending checkout link
type CancelLinkRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// PaymentResponse is the API shape of a payment
type PaymentResponse struct {
	OrderCode         int64      `json:"order_code"`
	BookingID         *uuid.UUID `json:"booking_id,omitempty"`
	Amount            float64    `json:"amount"`
	Status            string     `json:"status"`
	CheckoutURL       string     `json:"checkout_url,omitempty"`
	IsRefund          bool       `json:"is_refund"`
	OriginalOrderCode *int64     `json:"original_order_code,omitempty"`
	RefundAmount      *float64   `json:"refund_amount,omitempty"`
	RefundReason      string     `json:"refund_reason,omitempty"`
	RefundRequestedAt *time.Time `json:"refund_requested_at,omitempty"`
	RefundProcessedAt *time.Time `json:"refund_processed_at,omitempty"`
	ProofImageURL     string     `json:"proof_image_url,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ToResponse converts a Payment to its API shape
func (p *Payment) ToResponse() PaymentResponse {
	return PaymentResponse{
		OrderCode:         p.OrderCode,
		BookingID:         p.BookingID,
		Amount:            p.Amount,
		Status:            p.Status.String(),
		CheckoutURL:       p.CheckoutURL,
		IsRefund:          p.IsRefund,
		OriginalOrderCode: p.OriginalOrderCode,
		RefundAmount:      p.RefundAmount,
		RefundReason:      p.RefundReason,
		RefundRequestedAt: p.RefundRequestedAt,
		RefundProcessedAt: p.RefundProcessedAt,
		ProofImageURL:     p.ProofImageURL,
		CreatedAt:         p.CreatedAt,
	}
}
