package bookings

import (
	"testing"

	"busline/internal/shared/apperrors"
	"busline/internal/trips"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceSeatsFromSeatPriceMap(t *testing.T) {
	trip := &trips.Trip{
		SeatPrices: trips.SeatPriceMap{"A1": 100000, "A2": 120000, "B1": 80000},
	}

	total, priced, err := PriceSeats(trip, []SeatRequest{
		{SeatID: "A1", SeatCode: "A1"},
		{SeatID: "B1", SeatCode: "B1"},
	}, 50000)
	require.NoError(t, err)

	assert.Equal(t, float64(180000), total)
	require.Len(t, priced, 2)
	assert.Equal(t, float64(100000), priced[0].Price)
	assert.Equal(t, float64(80000), priced[1].Price)
}

func TestPriceSeatsMissingSeatNeverPricedAtZero(t *testing.T) {
	trip := &trips.Trip{
		SeatPrices: trips.SeatPriceMap{"A1": 100000},
	}

	_, _, err := PriceSeats(trip, []SeatRequest{
		{SeatID: "A1", SeatCode: "A1"},
		{SeatID: "Z9", SeatCode: "Z9"},
		{SeatID: "Z8", SeatCode: "Z8"},
	}, 50000)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Contains(t, err.Error(), "Z9")
	assert.Contains(t, err.Error(), "Z8")
}

func TestPriceSeatsFlatDefaultWhenTripHasNoMap(t *testing.T) {
	trip := &trips.Trip{}

	total, priced, err := PriceSeats(trip, []SeatRequest{
		{SeatID: "A1", SeatCode: "A1"},
		{SeatID: "A2", SeatCode: "A2"},
	}, 100000)
	require.NoError(t, err)

	assert.Equal(t, float64(200000), total)
	for _, seat := range priced {
		assert.Equal(t, float64(100000), seat.Price)
	}
}

func TestPriceSeatsRequiresSeats(t *testing.T) {
	trip := &trips.Trip{}
	_, _, err := PriceSeats(trip, nil, 100000)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestPriceSeatsRequiresDefaultWhenNoMap(t *testing.T) {
	trip := &trips.Trip{}
	_, _, err := PriceSeats(trip, []SeatRequest{{SeatID: "A1", SeatCode: "A1"}}, 0)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}
