package handlers

import (
	"net/http"
	"testing"

	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/testutil"
	"github.com/stretchr/testify/suite"
)

type NearbySuite struct {
	apiSuite
	token string
}

func TestNearbySuite(t *testing.T) {
	suite.Run(t, new(NearbySuite))
}

// Nairobi CBD
const centerQuery = "lat=-1.2864&lng=36.8172"

type nearbyListings struct {
	Listings []NearbyListing `json:"listings"`
	Count    int             `json:"count"`
	Radius   float64         `json:"radius"`
}

func (s *NearbySuite) SetupTest() {
	s.apiSuite.SetupTest()
	host, _ := s.user("host")
	guest, token := s.user("guest")
	s.token = token

	westlands := testutil.CreateLocation(s.T(), s.db, "Westlands", -1.2676, 36.8108) // ~2 km
	karen := testutil.CreateLocation(s.T(), s.db, "Karen", -1.3197, 36.7073)         // ~13 km
	mombasa := testutil.CreateLocation(s.T(), s.db, "Mombasa", -4.0435, 39.6682)     // ~440 km

	testutil.CreateListing(s.T(), s.db, host, karen, 30, 4)
	testutil.CreateListing(s.T(), s.db, host, westlands, 20, 4)
	testutil.CreateListing(s.T(), s.db, host, mombasa, 10, 4)
	cancelled := testutil.CreateListing(s.T(), s.db, host, westlands, 20, 4)
	s.Require().NoError(s.db.Model(cancelled).Update("status", models.ListingStatusCancelled).Error)

	testutil.CreateRequest(s.T(), s.db, guest, karen)
}

func (s *NearbySuite) TestListingsWithinRadiusSortedByDistance() {
	w := s.do(http.MethodGet, "/api/nearby/listings?"+centerQuery+"&radius=20", s.token, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var resp nearbyListings
	s.decode(w, &resp)

	s.Require().Len(resp.Listings, 2)
	s.Equal("Westlands", resp.Listings[0].Location.Name)
	s.Equal("Karen", resp.Listings[1].Location.Name)
	s.Less(resp.Listings[0].DistanceKm, resp.Listings[1].DistanceKm)
	s.InDelta(2.2, resp.Listings[0].DistanceKm, 0.5)
}

func (s *NearbySuite) TestDefaultRadiusAndCap() {
	var resp nearbyListings
	s.decode(s.do(http.MethodGet, "/api/nearby/listings?"+centerQuery, s.token, nil), &resp)
	s.Equal(10.0, resp.Radius)
	s.Len(resp.Listings, 1)

	s.decode(s.do(http.MethodGet, "/api/nearby/listings?"+centerQuery+"&radius=5000", s.token, nil), &resp)
	s.Equal(200.0, resp.Radius)
	s.Len(resp.Listings, 2)
}

func (s *NearbySuite) TestRejectsBadQueries() {
	for _, q := range []string{
		"lng=36.8",
		"lat=-1.28",
		"lat=abc&lng=36.8",
		"lat=95&lng=36.8",
		centerQuery + "&radius=0",
		centerQuery + "&radius=-3",
	} {
		w := s.do(http.MethodGet, "/api/nearby/listings?"+q, s.token, nil)
		s.Equal(http.StatusBadRequest, w.Code, q)
	}
}

func (s *NearbySuite) TestResultsAreCached() {
	path := "/api/nearby/listings?" + centerQuery + "&radius=20"
	var first nearbyListings
	s.decode(s.do(http.MethodGet, path, s.token, nil), &first)
	s.Len(s.cache.items, 1)

	host := testutil.CreateUser(s.T(), s.db, "latehost")
	loc := testutil.CreateLocation(s.T(), s.db, "Parklands", -1.2633, 36.8581)
	testutil.CreateListing(s.T(), s.db, host, loc, 15, 2)

	var second nearbyListings
	s.decode(s.do(http.MethodGet, path, s.token, nil), &second)
	s.Equal(len(first.Listings), len(second.Listings))

	// a different radius is a different key
	var wider nearbyListings
	s.decode(s.do(http.MethodGet, "/api/nearby/listings?"+centerQuery+"&radius=25", s.token, nil), &wider)
	s.Len(wider.Listings, 3)
}

func (s *NearbySuite) TestCombinedSearch() {
	w := s.do(http.MethodGet, "/api/nearby?"+centerQuery+"&radius=20", s.token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Listings []NearbyListing `json:"listings"`
		Requests []NearbyRequest `json:"requests"`
	}
	s.decode(w, &resp)
	s.Len(resp.Listings, 2)
	s.Require().Len(resp.Requests, 1)
	s.Equal("Karen", resp.Requests[0].Location.Name)
	s.Greater(resp.Requests[0].DistanceKm, 10.0)
}

func (s *NearbySuite) TestAcrossTheAntimeridian() {
	host := testutil.CreateUser(s.T(), s.db, "fijihost")
	loc := testutil.CreateLocation(s.T(), s.db, "Taveuni", -16.8, 179.99)
	testutil.CreateListing(s.T(), s.db, host, loc, 40, 2)

	var resp nearbyListings
	s.decode(s.do(http.MethodGet, "/api/nearby/listings?lat=-16.8&lng=-179.99&radius=10", s.token, nil), &resp)
	s.Require().Len(resp.Listings, 1)
	s.Equal("Taveuni", resp.Listings[0].Location.Name)
}
