package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"busline/internal/shared/config"
	"busline/internal/shared/database"
	"busline/internal/trips"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("🌱 Starting Busline Database Seeder...")

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables in reverse dependency order
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"payments",
		"tickets",
		"booking_seats",
		"bookings",
		"trips",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Exec("SET CONSTRAINTS ALL DEFERRED").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to defer constraints: %w", err)
	}

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	if err := tx.Exec("SET CONSTRAINTS ALL IMMEDIATE").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to restore constraints: %w", err)
	}

	return tx.Commit().Error
}

// SeedAll seeds all required data
func (s *Seeder) SeedAll() error {
	ctx := context.Background()

	if err := s.SeedTrips(); err != nil {
		return fmt.Errorf("failed to seed trips: %w", err)
	}

	// Clear Redis so stale seat locks cannot survive a reseed
	if s.db.Redis != nil {
		if err := s.db.Redis.FlushDB(ctx).Err(); err != nil {
			log.Printf("Warning: Failed to clear Redis: %v", err)
		}
	}

	return nil
}

// SeedTrips creates sample trips with per-seat pricing
func (s *Seeder) SeedTrips() error {
	fmt.Println("  🚌 Seeding trips...")

	tripsData := []struct {
		name        string
		origin      string
		destination string
		daysFromNow int
		seatPrices  trips.SeatPriceMap
	}{
		{
			name:        "Morning Express",
			origin:      "Hanoi",
			destination: "Hai Phong",
			daysFromNow: 3,
			seatPrices:  seatGrid([]string{"A", "B"}, 10, 100000, map[string]float64{"A": 120000}),
		},
		{
			name:        "Coastal Sleeper",
			origin:      "Hanoi",
			destination: "Da Nang",
			daysFromNow: 7,
			seatPrices:  seatGrid([]string{"A", "B", "C"}, 12, 250000, map[string]float64{"A": 320000}),
		},
		{
			name:        "Highland Shuttle",
			origin:      "Da Nang",
			destination: "Da Lat",
			daysFromNow: 14,
			seatPrices:  seatGrid([]string{"A", "B"}, 8, 180000, nil),
		},
		{
			name:        "Night Rider",
			origin:      "Ho Chi Minh City",
			destination: "Nha Trang",
			daysFromNow: 5,
			seatPrices:  seatGrid([]string{"A", "B", "C", "D"}, 10, 210000, map[string]float64{"A": 260000, "B": 260000}),
		},
	}

	for _, tripData := range tripsData {
		departure := time.Now().AddDate(0, 0, tripData.daysFromNow)
		trip := trips.Trip{
			Name:        tripData.name,
			Origin:      tripData.origin,
			Destination: tripData.destination,
			DepartureAt: departure,
			Status:      "SCHEDULED",
			SeatPrices:  tripData.seatPrices,
		}

		if err := s.db.PostgreSQL.Create(&trip).Error; err != nil {
			return fmt.Errorf("failed to create trip %s: %w", trip.Name, err)
		}
		fmt.Printf("    ✅ Created trip: %s (%s → %s, %d seats)\n",
			trip.Name, trip.Origin, trip.Destination, len(trip.SeatPrices))
	}

	return nil
}

// seatGrid builds a seat-price map for rows of numbered seats. Rows in
// rowPrices override the base price.
func seatGrid(rows []string, seatsPerRow int, basePrice float64, rowPrices map[string]float64) trips.SeatPriceMap {
	prices := make(trips.SeatPriceMap)
	for _, row := range rows {
		price := basePrice
		if override, ok := rowPrices[row]; ok {
			price = override
		}
		for i := 1; i <= seatsPerRow; i++ {
			prices[fmt.Sprintf("%s%d", row, i)] = price
		}
	}
	return prices
}
