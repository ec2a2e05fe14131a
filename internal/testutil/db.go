// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/dinewithlocals/backend/internal/database"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const JWTSecret = "test-secret"

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return db
}

// CreateUser inserts a user with password "password123".
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		Name:     username,
		Role:     models.RoleUser,
	}
	require.NoError(t, u.HashPassword())
	require.NoError(t, db.Create(u).Error)
	return u
}

// Token issues a valid bearer token for u.
func Token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := utils.GenerateToken(u.ID, u.Email, string(u.Role), JWTSecret)
	require.NoError(t, err)
	return tok
}

func CreateLocation(t *testing.T, db *gorm.DB, name string, lat, lng float64) *models.Location {
	t.Helper()
	loc := &models.Location{Name: name, City: "Nairobi", Country: "Kenya", Latitude: lat, Longitude: lng}
	require.NoError(t, db.Create(loc).Error)
	return loc
}

func CreateListing(t *testing.T, db *gorm.DB, host *models.User, loc *models.Location, price float64, maxGuests int) *models.Listing {
	t.Helper()
	l := &models.Listing{
		HostID:     host.ID,
		Title:      "Dinner at " + loc.Name,
		Category:   models.CategoryDining,
		LocationID: loc.ID,
		StartTime:  time.Now().Add(48 * time.Hour),
		MaxGuests:  maxGuests,
		Price:      price,
		Currency:   "usd",
		Status:     models.ListingStatusActive,
	}
	require.NoError(t, db.Create(l).Error)
	return l
}

func CreateRequest(t *testing.T, db *gorm.DB, guest *models.User, loc *models.Location) *models.Request {
	t.Helper()
	r := &models.Request{
		GuestID:       guest.ID,
		Title:         "Looking for a local dinner",
		Category:      models.CategoryDining,
		LocationID:    loc.ID,
		PreferredDate: time.Now().Add(72 * time.Hour),
		GuestCount:    2,
		Status:        models.RequestStatusOpen,
	}
	require.NoError(t, db.Create(r).Error)
	return r
}
