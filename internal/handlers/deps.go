package handlers

import (
	"context"
	"mime/multipart"

	"github.com/dinewithlocals/backend/internal/config"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/metrics"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// ImageStore stores an uploaded image and returns its public URL.
type ImageStore interface {
	UploadImage(ctx context.Context, file *multipart.FileHeader, folder string) (string, error)
}

// GoogleIdentity is the verified subset of a Google account.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// GoogleTokenVerifier checks a Google ID token for the given audience.
type GoogleTokenVerifier func(ctx context.Context, credential, audience string) (*GoogleIdentity, error)

// Deps is everything the route handlers need.
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Hub      *services.Hub
	Notifier *services.Notifier
	Storage  ImageStore
	Payments services.PaymentGateway
	Mailer   services.Mailer
	Cache    services.Cache // nil without Redis
	Metrics  *metrics.Metrics

	GoogleOAuth       *oauth2.Config
	VerifyGoogleToken GoogleTokenVerifier

	// Extra middleware for /api/auth, e.g. a stricter rate limit.
	AuthLimiter gin.HandlerFunc
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.RespondBindError(c, err)
		return false
	}
	return true
}

// warnIfFailed logs a failed read that follows a committed write.
func warnIfFailed(err error, msg string) {
	if err != nil {
		logger.Log.Warn(msg, zap.Error(err))
	}
}
