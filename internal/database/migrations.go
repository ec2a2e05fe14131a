package database

import (
	"github.com/dinewithlocals/backend/internal/models"
	"gorm.io/gorm"
)

// AllModels is every table the service owns, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.NotificationPreference{},
		&models.OTP{},
		&models.Location{},
		&models.Listing{},
		&models.Request{},
		&models.Match{},
		&models.Chat{},
		&models.ChatParticipant{},
		&models.Message{},
		&models.Blog{},
		&models.Comment{},
		&models.Like{},
		&models.Review{},
		&models.Notification{},
	}
}

// RunMigrations creates or updates every table. Check constraints are only
// added on Postgres.
func RunMigrations(db *gorm.DB) error {
	if err := db.SetupJoinTable(&models.Chat{}, "Participants", &models.ChatParticipant{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	constraints := []struct {
		table, name, check string
	}{
		{"users", "users_role_check", "role IN ('user', 'admin')"},
		{"listings", "listings_category_check", "category IN ('dining', 'travel', 'event')"},
		{"listings", "listings_status_check", "status IN ('active', 'cancelled', 'completed')"},
		{"listings", "listings_max_guests_check", "max_guests >= 1"},
		{"listings", "listings_price_check", "price >= 0"},
		{"requests", "requests_category_check", "category IN ('dining', 'travel', 'event')"},
		{"requests", "requests_status_check", "status IN ('open', 'matched', 'closed')"},
		{"matches", "matches_status_check", "status IN ('pending', 'approved', 'rejected', 'cancelled')"},
		{"matches", "matches_payment_status_check", "payment_status IN ('none', 'pending', 'captured', 'cancelled', 'failed')"},
		{"matches", "matches_target_check", "listing_id IS NOT NULL OR request_id IS NOT NULL"},
		{"reviews", "reviews_rating_check", "rating BETWEEN 1 AND 5"},
		{"blogs", "blogs_counts_check", "likes_count >= 0 AND comments_count >= 0"},
	}

	for _, c := range constraints {
		if err := db.Exec(`ALTER TABLE ` + c.table + ` DROP CONSTRAINT IF EXISTS ` + c.name).Error; err != nil {
			return err
		}
		if err := db.Exec(`ALTER TABLE ` + c.table + ` ADD CONSTRAINT ` + c.name + ` CHECK (` + c.check + `)`).Error; err != nil {
			return err
		}
	}

	return nil
}
