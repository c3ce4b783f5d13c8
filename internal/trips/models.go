package trips

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SeatPriceMap maps seat id -> price for a trip. Stored as JSONB; an
// empty map means the trip prices every seat at the flat default.
type SeatPriceMap map[string]float64

// Value implements driver.Valuer for JSONB storage
func (m SeatPriceMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB storage
func (m *SeatPriceMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return fmt.Errorf("unsupported type for SeatPriceMap: %T", value)
		}
	}
	return json.Unmarshal(bytes, m)
}

// Trip defines a scheduled bus trip
type Trip struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name        string       `gorm:"not null" json:"name"`
	Origin      string       `json:"origin"`
	Destination string       `json:"destination"`
	DepartureAt time.Time    `gorm:"index" json:"departure_at"`
	Status      string       `gorm:"type:varchar(20);check:status IN ('SCHEDULED', 'COMPLETED', 'CANCELLED');default:'SCHEDULED'" json:"status"`
	SeatPrices  SeatPriceMap `gorm:"type:jsonb" json:"seat_prices,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TableName sets the table name for Trip
func (Trip) TableName() string {
	return "trips"
}

// HasSeatPrices reports whether the trip carries a seat-price map
func (t *Trip) HasSeatPrices() bool {
	return len(t.SeatPrices) > 0
}

// CreateTripRequest represents a trip creation request
type CreateTripRequest struct {
	Name        string             `json:"name" validate:"required,min=2,max=200"`
	Origin      string             `json:"origin" validate:"max=200"`
	Destination string             `json:"destination" validate:"max=200"`
	DepartureAt time.Time          `json:"departure_at" validate:"required"`
	SeatPrices  map[string]float64 `json:"seat_prices" validate:"omitempty,dive,gt=0"`
}
