package bookings

import (
	"strings"

	"busline/internal/shared/apperrors"
	"busline/internal/trips"
)

// PriceSeats derives the total price and the per-seat price breakdown
// for the requested seats. A trip with a seat-price map prices every
// seat from the map; a requested id absent from the map fails rather
// than pricing at zero. A trip without a map prices every seat at the
// flat default. The two paths never mix within one calculation.
func PriceSeats(trip *trips.Trip, seats []SeatRequest, defaultSeatPrice float64) (float64, []BookingSeat, error) {
	if len(seats) == 0 {
		return 0, nil, apperrors.Validationf("at least one seat is required")
	}

	priced := make([]BookingSeat, 0, len(seats))
	var total float64

	if trip.HasSeatPrices() {
		var missing []string
		for _, seat := range seats {
			price, ok := trip.SeatPrices[seat.SeatID]
			if !ok {
				missing = append(missing, seat.SeatID)
				continue
			}
			priced = append(priced, BookingSeat{SeatID: seat.SeatID, SeatCode: seat.SeatCode, Price: price})
			total += price
		}
		if len(missing) > 0 {
			return 0, nil, apperrors.Validationf("no matching seats on trip for: %s", strings.Join(missing, ", "))
		}
		return total, priced, nil
	}

	if defaultSeatPrice <= 0 {
		return 0, nil, apperrors.Validationf("trip has no seat prices and no default seat price is configured")
	}
	for _, seat := range seats {
		priced = append(priced, BookingSeat{SeatID: seat.SeatID, SeatCode: seat.SeatCode, Price: defaultSeatPrice})
		total += defaultSeatPrice
	}
	return total, priced, nil
}
