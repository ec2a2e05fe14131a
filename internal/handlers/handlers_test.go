package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/dinewithlocals/backend/internal/config"
	"github.com/dinewithlocals/backend/internal/metrics"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeGateway records payment calls. captureErr makes Capture fail.
type fakeGateway struct {
	mu         sync.Mutex
	enabled    bool
	captureErr error
	authorized []int64
	captured   []string
	cancelled  []string
}

func (g *fakeGateway) Enabled() bool { return g.enabled }

func (g *fakeGateway) Authorize(_ context.Context, amount int64, _ string, _ services.PaymentMetadata) (*services.Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorized = append(g.authorized, amount)
	id := fmt.Sprintf("pi_%d", len(g.authorized))
	return &services.Authorization{IntentID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) Capture(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.captureErr != nil {
		return g.captureErr
	}
	g.captured = append(g.captured, intentID)
	return nil
}

func (g *fakeGateway) Cancel(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

// memoryCache is an in-process services.Cache.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	gets  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = raw
	return nil
}

// fakeVerifier accepts credentials of the form "ok:<subject>:<email>".
func fakeVerifier(_ context.Context, credential, audience string) (*GoogleIdentity, error) {
	parts := strings.Split(credential, ":")
	if len(parts) != 3 || parts[0] != "ok" || audience != "google-client" {
		return nil, errors.New("bad token")
	}
	return &GoogleIdentity{Subject: parts[1], Email: parts[2], Name: "Google User"}, nil
}

// apiSuite wires the full router against a fresh SQLite database per test.
type apiSuite struct {
	suite.Suite
	db       *gorm.DB
	router   *gin.Engine
	hub      *services.Hub
	notifier *services.Notifier
	payments *fakeGateway
	mailer   *fakeMailer
	cache    *memoryCache
	cancel   context.CancelFunc
}

func (s *apiSuite) SetupTest() {
	t := s.T()
	s.db = testutil.NewDB(t)
	s.payments = &fakeGateway{enabled: true}
	s.mailer = &fakeMailer{}
	s.cache = newMemoryCache()

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.hub = services.NewHub(metrics.Get())
	go s.hub.Run(ctx)
	s.notifier = services.NewNotifier(s.db, s.hub)

	storage, err := services.NewStorage(services.StorageConfig{UploadDir: t.TempDir(), BaseURL: "http://api.test"})
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:          testutil.JWTSecret,
		FrontendURL:        "http://front.test",
		BaseURL:            "http://api.test",
		GoogleClientID:     "google-client",
		PaymentCurrency:    "usd",
		PlatformFeePercent: 10,
	}

	s.router = gin.New()
	SetupRoutes(s.router, &Deps{
		DB:                s.db,
		Config:            cfg,
		Hub:               s.hub,
		Notifier:          s.notifier,
		Storage:           storage,
		Payments:          s.payments,
		Mailer:            s.mailer,
		Cache:             s.cache,
		Metrics:           metrics.Get(),
		VerifyGoogleToken: fakeVerifier,
	})
}

func (s *apiSuite) TearDownTest() {
	s.notifier.Wait()
	s.cancel()
}

// do sends a JSON request with an optional bearer token.
func (s *apiSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *apiSuite) decode(w *httptest.ResponseRecorder, dest interface{}) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

// user creates an account and returns it with a token.
func (s *apiSuite) user(name string) (*models.User, string) {
	u := testutil.CreateUser(s.T(), s.db, name)
	return u, testutil.Token(s.T(), u)
}

func (s *apiSuite) notificationsFor(userID uint, typ models.NotificationType) int64 {
	var n int64
	s.db.Model(&models.Notification{}).Where("user_id = ? AND type = ?", userID, typ).Count(&n)
	return n
}
