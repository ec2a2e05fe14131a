package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/metrics"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultRadiusKm = 10.0
	maxRadiusKm     = 200.0
	nearbyCacheTTL  = 60 * time.Second
)

type NearbyListing struct {
	models.Listing
	DistanceKm float64 `json:"distanceKm"`
}

type NearbyRequest struct {
	models.Request
	DistanceKm float64 `json:"distanceKm"`
}

type nearbyQuery struct {
	Lat, Lng, Radius float64
}

func parseNearbyQuery(c *gin.Context) (nearbyQuery, error) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return nearbyQuery{}, apperrors.Validation("lat", "lat is required")
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		return nearbyQuery{}, apperrors.Validation("lng", "lng is required")
	}
	if !utils.ValidCoordinates(lat, lng) {
		return nearbyQuery{}, apperrors.Validation("lat", "coordinates out of range")
	}

	radius := defaultRadiusKm
	if raw := c.Query("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			return nearbyQuery{}, apperrors.Validation("radius", "radius must be a positive number of kilometres")
		}
	}
	if radius > maxRadiusKm {
		radius = maxRadiusKm
	}
	return nearbyQuery{Lat: lat, Lng: lng, Radius: radius}, nil
}

func (q nearbyQuery) cacheKey(kind string) string {
	return fmt.Sprintf("nearby:%s:%.4f:%.4f:%g", kind, utils.RoundCoord(q.Lat), utils.RoundCoord(q.Lng), q.Radius)
}

// withinBox narrows a query joined with locations to the bounding box.
func withinBox(query *gorm.DB, q nearbyQuery) *gorm.DB {
	box := utils.GetBoundingBox(q.Lat, q.Lng, q.Radius)
	query = query.Where("locations.latitude BETWEEN ? AND ?", box.SouthWest.Lat, box.NorthEast.Lat)
	if !box.CrossesAntimeridian() {
		query = query.Where("locations.longitude BETWEEN ? AND ?", box.SouthWest.Lng, box.NorthEast.Lng)
	}
	return query
}

// NearbyFinder runs distance searches with an optional cache in front.
type NearbyFinder struct {
	db      *gorm.DB
	cache   services.Cache
	metrics *metrics.Metrics
}

func NewNearbyFinder(db *gorm.DB, cache services.Cache, m *metrics.Metrics) *NearbyFinder {
	return &NearbyFinder{db: db, cache: cache, metrics: m}
}

func (f *NearbyFinder) count(result string) {
	if f.metrics != nil {
		f.metrics.NearbyCacheTotal.WithLabelValues(result).Inc()
	}
}

// cachedSearch serves key from the cache or runs load and stores its
// result. Cache errors only cost a miss.
func cachedSearch[T any](ctx context.Context, f *NearbyFinder, key string, load func() ([]T, error)) ([]T, error) {
	if f.cache != nil {
		var out []T
		hit, err := f.cache.GetJSON(ctx, key, &out)
		if err != nil {
			logger.Log.Debug("Nearby cache read failed", zap.String("key", key), zap.Error(err))
		}
		if hit {
			f.count("hit")
			return out, nil
		}
		f.count("miss")
	}

	out, err := load()
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		if err := f.cache.SetJSON(ctx, key, out, nearbyCacheTTL); err != nil {
			logger.Log.Debug("Nearby cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

// Listings returns active upcoming listings within the radius, closest first.
func (f *NearbyFinder) Listings(ctx context.Context, q nearbyQuery) ([]NearbyListing, error) {
	return cachedSearch(ctx, f, q.cacheKey("listings"), func() ([]NearbyListing, error) {
		var listings []models.Listing
		query := f.db.WithContext(ctx).Model(&models.Listing{}).
			Joins("JOIN locations ON locations.id = listings.location_id").
			Where("listings.status = ? AND listings.start_time > ?", models.ListingStatusActive, time.Now())
		if err := withinBox(query, q).Preload("Location").Preload("Host").Find(&listings).Error; err != nil {
			return nil, fmt.Errorf("nearby listings: %w", err)
		}

		out := make([]NearbyListing, 0, len(listings))
		for _, l := range listings {
			d := utils.HaversineDistance(q.Lat, q.Lng, l.Location.Latitude, l.Location.Longitude)
			if d <= q.Radius {
				out = append(out, NearbyListing{Listing: l, DistanceKm: d})
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
		return out, nil
	})
}

// Requests returns open requests within the radius, closest first.
func (f *NearbyFinder) Requests(ctx context.Context, q nearbyQuery) ([]NearbyRequest, error) {
	return cachedSearch(ctx, f, q.cacheKey("requests"), func() ([]NearbyRequest, error) {
		var requests []models.Request
		query := f.db.WithContext(ctx).Model(&models.Request{}).
			Joins("JOIN locations ON locations.id = requests.location_id").
			Where("requests.status = ?", models.RequestStatusOpen)
		if err := withinBox(query, q).Preload("Location").Preload("Guest").Find(&requests).Error; err != nil {
			return nil, fmt.Errorf("nearby requests: %w", err)
		}

		out := make([]NearbyRequest, 0, len(requests))
		for _, r := range requests {
			d := utils.HaversineDistance(q.Lat, q.Lng, r.Location.Latitude, r.Location.Longitude)
			if d <= q.Radius {
				out = append(out, NearbyRequest{Request: r, DistanceKm: d})
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
		return out, nil
	})
}

func NearbyListings(f *NearbyFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseNearbyQuery(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		listings, err := f.Listings(c.Request.Context(), q)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"listings": listings, "count": len(listings), "radius": q.Radius})
	}
}

func NearbyRequests(f *NearbyFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseNearbyQuery(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		requests, err := f.Requests(c.Request.Context(), q)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": requests, "count": len(requests), "radius": q.Radius})
	}
}

// Nearby runs both searches concurrently.
func Nearby(f *NearbyFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseNearbyQuery(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var (
			listings []NearbyListing
			requests []NearbyRequest
		)
		g, ctx := errgroup.WithContext(c.Request.Context())
		g.Go(func() error {
			var err error
			listings, err = f.Listings(ctx, q)
			return err
		})
		g.Go(func() error {
			var err error
			requests, err = f.Requests(ctx, q)
			return err
		})
		if err := g.Wait(); err != nil {
			utils.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listings": listings, "requests": requests, "radius": q.Radius})
	}
}
