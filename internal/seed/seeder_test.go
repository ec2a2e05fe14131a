package seed

import (
	"testing"

	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDevAndClean(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewSeeder(db)

	stats, err := s.SeedDev(Options{Users: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Users)
	assert.Equal(t, 3, stats.Requests)
	assert.GreaterOrEqual(t, stats.Listings, 3)
	assert.Equal(t, 6, stats.Blogs)

	var user models.User
	require.NoError(t, db.First(&user).Error)
	assert.NoError(t, user.CheckPassword(DefaultPassword))
	assert.Contains(t, user.Email, "@"+SeedEmailDomain)

	// counters match the rows after the recount
	var blogs []models.Blog
	require.NoError(t, db.Find(&blogs).Error)
	for _, b := range blogs {
		var likes, comments int64
		db.Model(&models.Like{}).Where("blog_id = ?", b.ID).Count(&likes)
		db.Model(&models.Comment{}).Where("blog_id = ?", b.ID).Count(&comments)
		assert.Equal(t, int(likes), b.LikesCount)
		assert.Equal(t, int(comments), b.CommentsCount)
	}

	var approved []models.Match
	require.NoError(t, db.Where("status = ?", models.MatchStatusApproved).Find(&approved).Error)
	for _, m := range approved {
		var parts int64
		db.Table("chat_participants").
			Joins("JOIN chats ON chats.id = chat_participants.chat_id").
			Where("chats.listing_id = ? AND chat_participants.user_id IN ?", *m.ListingID, []uint{m.HostID, m.GuestID}).
			Count(&parts)
		assert.GreaterOrEqual(t, parts, int64(2))
	}

	require.NoError(t, s.Clean())
	var remaining int64
	db.Unscoped().Model(&models.User{}).Count(&remaining)
	assert.Zero(t, remaining)
	db.Model(&models.Like{}).Count(&remaining)
	assert.Zero(t, remaining)
}

func TestSeedDevTwiceKeepsUsernamesUnique(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewSeeder(db)

	_, err := s.SeedDev(Options{Users: 3})
	require.NoError(t, err)
	_, err = s.SeedDev(Options{Users: 3})
	require.NoError(t, err)

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(6), count)
}
