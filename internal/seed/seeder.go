// Package seed fills a development database with realistic fake data.
package seed

import (
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

// SeedEmailDomain marks seeded accounts.
const SeedEmailDomain = "example.com"

type city struct {
	name, country string
	lat, lng      float64
}

var cities = []city{
	{"Nairobi", "Kenya", -1.2864, 36.8172},
	{"Lisbon", "Portugal", 38.7223, -9.1393},
	{"Mexico City", "Mexico", 19.4326, -99.1332},
	{"Hanoi", "Vietnam", 21.0278, 105.8342},
	{"Marrakesh", "Morocco", 31.6295, -7.9811},
}

var blogTags = []string{"food", "travel", "market", "streetfood", "family", "festival", "cooking", "hiking"}

var listingTitles = map[models.Category][]string{
	models.CategoryDining: {"Home-cooked dinner", "Sunday family lunch", "Street food crawl", "Cooking class at home"},
	models.CategoryTravel: {"Old town walk", "Day trip to the hills", "Sunrise hike", "Hidden viewpoints tour"},
	models.CategoryEvent:  {"Local music night", "Harvest festival", "Football watch party", "Art gallery opening"},
}

// Options sizes a dev seed.
type Options struct {
	Users int
}

// Stats counts what SeedDev created.
type Stats struct {
	Users    int
	Listings int
	Requests int
	Matches  int
	Blogs    int
	Comments int
	Likes    int
}

type Seeder struct {
	db *gorm.DB
}

func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// SeedDev creates users with locations, listings, requests, matches and a
// blog feed.
func (s *Seeder) SeedDev(opts Options) (*Stats, error) {
	if opts.Users < 2 {
		opts.Users = 2
	}
	stats := &Stats{}

	logger.Log.Info("Creating users...", zap.Int("count", opts.Users))
	users, err := s.seedUsers(opts.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}
	stats.Users = len(users)

	logger.Log.Info("Creating locations...")
	locations, err := s.seedLocations(users, len(users))
	if err != nil {
		return nil, fmt.Errorf("failed to seed locations: %w", err)
	}

	logger.Log.Info("Creating listings...")
	listings, err := s.seedListings(users, locations)
	if err != nil {
		return nil, fmt.Errorf("failed to seed listings: %w", err)
	}
	stats.Listings = len(listings)

	logger.Log.Info("Creating requests...")
	requests, err := s.seedRequests(users, locations)
	if err != nil {
		return nil, fmt.Errorf("failed to seed requests: %w", err)
	}
	stats.Requests = len(requests)

	logger.Log.Info("Creating matches...")
	if stats.Matches, err = s.seedMatches(users, listings); err != nil {
		return nil, fmt.Errorf("failed to seed matches: %w", err)
	}

	logger.Log.Info("Creating blog feed...")
	blogs, err := s.seedBlogs(users)
	if err != nil {
		return nil, fmt.Errorf("failed to seed blogs: %w", err)
	}
	stats.Blogs = len(blogs)
	if stats.Comments, err = s.seedComments(users, blogs); err != nil {
		return nil, fmt.Errorf("failed to seed comments: %w", err)
	}
	if stats.Likes, err = s.seedLikes(users, blogs); err != nil {
		return nil, fmt.Errorf("failed to seed likes: %w", err)
	}
	if err := s.recount(); err != nil {
		return nil, fmt.Errorf("failed to recount blog counters: %w", err)
	}

	return stats, nil
}

// Clean removes every row, children first. Use with caution.
func (s *Seeder) Clean() error {
	tables := []string{
		"notifications", "reviews", "likes", "comments", "blogs",
		"messages", "chat_participants", "chats", "matches",
		"requests", "listings", "locations", "otps",
		"notification_preferences", "users",
	}
	for _, t := range tables {
		if err := s.db.Exec("DELETE FROM " + t).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", t, err)
		}
	}
	return nil
}

func (s *Seeder) seedUsers(count int) ([]models.User, error) {
	// hash once, bcrypt is slow
	tmpl := models.User{Password: DefaultPassword}
	if err := tmpl.HashPassword(); err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.Model(&models.User{}).Count(&existing).Error; err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		username := fmt.Sprintf("%s%d", gofakeit.Username(), int(existing)+i)
		c := cities[gofakeit.Number(0, len(cities)-1)]
		users = append(users, models.User{
			Username:     username,
			Email:        fmt.Sprintf("%s@%s", username, SeedEmailDomain),
			PasswordHash: tmpl.PasswordHash,
			Name:         gofakeit.Name(),
			Bio:          gofakeit.HipsterSentence() + " Based in " + c.name + ".",
			Languages:    []string{"en", gofakeit.RandomString([]string{"sw", "pt", "es", "vi", "fr"})},
			Role:         models.RoleUser,
			IsVerified:   true,
		})
	}
	if err := s.db.Omit(clause.Associations).CreateInBatches(&users, 100).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// jitter moves a point up to about 5 km.
func jitter(v float64) float64 {
	return math.Round((v+gofakeit.Float64Range(-0.05, 0.05))*1e6) / 1e6
}

func (s *Seeder) seedLocations(users []models.User, count int) ([]models.Location, error) {
	locations := make([]models.Location, 0, count)
	for i := 0; i < count; i++ {
		c := cities[i%len(cities)]
		locations = append(locations, models.Location{
			Name:        gofakeit.Word() + " " + gofakeit.RandomString([]string{"Corner", "Square", "Gardens", "Market", "Terrace"}),
			Address:     fmt.Sprintf("%d %s Street", gofakeit.Number(1, 300), gofakeit.Word()),
			City:        c.name,
			Country:     c.country,
			Latitude:    jitter(c.lat),
			Longitude:   jitter(c.lng),
			CreatedByID: users[i%len(users)].ID,
		})
	}
	if err := s.db.Omit(clause.Associations).CreateInBatches(&locations, 100).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

func randomCategory() models.Category {
	return models.Category(gofakeit.RandomString([]string{
		string(models.CategoryDining), string(models.CategoryTravel), string(models.CategoryEvent),
	}))
}

// seedListings gives roughly half the users one or two listings.
func (s *Seeder) seedListings(users []models.User, locations []models.Location) ([]models.Listing, error) {
	now := time.Now()
	var listings []models.Listing
	for i, u := range users {
		if i%2 == 1 {
			continue
		}
		for n := gofakeit.Number(1, 2); n > 0; n-- {
			cat := randomCategory()
			titles := listingTitles[cat]
			price := 0.0
			if gofakeit.Number(0, 3) > 0 {
				price = math.Round(gofakeit.Float64Range(5, 60))
			}
			listings = append(listings, models.Listing{
				HostID:      u.ID,
				Title:       titles[gofakeit.Number(0, len(titles)-1)],
				Description: gofakeit.HipsterSentence(),
				Category:    cat,
				LocationID:  locations[gofakeit.Number(0, len(locations)-1)].ID,
				StartTime:   gofakeit.DateRange(now.Add(24*time.Hour), now.AddDate(0, 0, 30)),
				MaxGuests:   gofakeit.Number(2, 8),
				Price:       price,
				Currency:    "usd",
				Status:      models.ListingStatusActive,
			})
		}
	}
	if len(listings) == 0 {
		return nil, nil
	}
	if err := s.db.Omit(clause.Associations).CreateInBatches(&listings, 100).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (s *Seeder) seedRequests(users []models.User, locations []models.Location) ([]models.Request, error) {
	now := time.Now()
	var requests []models.Request
	for i, u := range users {
		if i%2 == 0 {
			continue
		}
		requests = append(requests, models.Request{
			GuestID:       u.ID,
			Title:         "Looking for " + gofakeit.RandomString([]string{"a dinner", "a guide", "company", "a cooking class"}),
			Description:   gofakeit.HipsterSentence(),
			Category:      randomCategory(),
			LocationID:    locations[gofakeit.Number(0, len(locations)-1)].ID,
			PreferredDate: gofakeit.DateRange(now.Add(24*time.Hour), now.AddDate(0, 0, 30)),
			GuestCount:    gofakeit.Number(1, 4),
			Budget:        math.Round(gofakeit.Float64Range(0, 50)),
			Status:        models.RequestStatusOpen,
		})
	}
	if len(requests) == 0 {
		return nil, nil
	}
	if err := s.db.Omit(clause.Associations).CreateInBatches(&requests, 100).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// seedMatches books one guest onto each listing. Every other booking is
// approved and gets its chat.
func (s *Seeder) seedMatches(users []models.User, listings []models.Listing) (int, error) {
	created := 0
	for i, l := range listings {
		guest := users[gofakeit.Number(0, len(users)-1)]
		if guest.ID == l.HostID {
			continue
		}
		listingID := l.ID
		match := models.Match{
			ListingID:     &listingID,
			HostID:        l.HostID,
			GuestID:       guest.ID,
			InitiatorID:   guest.ID,
			GuestCount:    1,
			Message:       gofakeit.HipsterSentence(),
			Status:        models.MatchStatusPending,
			Currency:      l.Currency,
			TotalAmount:   int64(math.Round(l.Price * 100)),
			PaymentStatus: models.PaymentStatusNone,
		}
		if i%2 == 0 {
			if err := match.Transition(models.MatchStatusApproved, time.Now()); err != nil {
				return created, err
			}
		}

		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit(clause.Associations).Create(&match).Error; err != nil {
				return err
			}
			if match.Status != models.MatchStatusApproved {
				return nil
			}
			now := time.Now()
			chat := models.Chat{ListingID: &listingID, LastMessageAt: &now}
			if err := tx.Omit(clause.Associations).Create(&chat).Error; err != nil {
				return err
			}
			parts := []models.ChatParticipant{{ChatID: chat.ID, UserID: l.HostID}, {ChatID: chat.ID, UserID: guest.ID}}
			if err := tx.Create(&parts).Error; err != nil {
				return err
			}
			return tx.Omit(clause.Associations).Create(&models.Message{ChatID: chat.ID, SenderID: l.HostID, Content: "Looking forward to hosting you!"}).Error
		})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *Seeder) seedBlogs(users []models.User) ([]models.Blog, error) {
	blogs := make([]models.Blog, 0, len(users))
	for _, u := range users {
		tags := []string{
			gofakeit.RandomString(blogTags),
			gofakeit.RandomString(blogTags),
		}
		if tags[0] == tags[1] {
			tags = tags[:1]
		}
		blogs = append(blogs, models.Blog{
			AuthorID: u.ID,
			Title:    gofakeit.HipsterSentence(),
			Content:  gofakeit.HipsterSentence() + " " + gofakeit.HipsterSentence(),
			Tags:     tags,
		})
	}
	if err := s.db.Omit(clause.Associations).CreateInBatches(&blogs, 100).Error; err != nil {
		return nil, err
	}
	return blogs, nil
}

func (s *Seeder) seedComments(users []models.User, blogs []models.Blog) (int, error) {
	created := 0
	for _, b := range blogs {
		for n := gofakeit.Number(0, 3); n > 0; n-- {
			c := models.Comment{
				BlogID:   b.ID,
				AuthorID: users[gofakeit.Number(0, len(users)-1)].ID,
				Content:  gofakeit.HipsterSentence(),
			}
			if err := s.db.Omit(clause.Associations).Create(&c).Error; err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

func (s *Seeder) seedLikes(users []models.User, blogs []models.Blog) (int, error) {
	created := 0
	for _, b := range blogs {
		for n := gofakeit.Number(0, len(users)); n > 0; n-- {
			res := s.db.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.Like{UserID: users[gofakeit.Number(0, len(users)-1)].ID, BlogID: b.ID})
			if res.Error != nil {
				return created, res.Error
			}
			created += int(res.RowsAffected)
		}
	}
	return created, nil
}

// recount syncs the denormalized blog counters with the rows.
func (s *Seeder) recount() error {
	return s.db.Exec(`UPDATE blogs SET
		likes_count = (SELECT COUNT(*) FROM likes WHERE likes.blog_id = blogs.id),
		comments_count = (SELECT COUNT(*) FROM comments WHERE comments.blog_id = blogs.id AND comments.deleted_at IS NULL)`).Error
}
