package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

const oauthStateCookie = "oauth_state"

type RegisterInput struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func issueToken(c *gin.Context, secret string, user *models.User, status int) {
	token, err := utils.GenerateToken(user.ID, user.Email, string(user.Role), secret)
	if err != nil {
		utils.RespondError(c, fmt.Errorf("generate token: %w", err))
		return
	}
	c.JSON(status, authResponse{Token: token, User: user})
}

func Register(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RegisterInput
		if !bindJSON(c, &input) {
			return
		}
		email := strings.ToLower(strings.TrimSpace(input.Email))
		username := strings.TrimSpace(input.Username)

		var count int64
		if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("check email: %w", err))
			return
		}
		if count > 0 {
			utils.RespondError(c, apperrors.Conflict("email already registered"))
			return
		}
		if err := db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("check username: %w", err))
			return
		}
		if count > 0 {
			utils.RespondError(c, apperrors.Conflict("username already taken"))
			return
		}

		user := models.User{
			Username: username,
			Email:    email,
			Password: input.Password,
			Name:     input.Name,
			Role:     models.RoleUser,
		}
		if err := user.HashPassword(); err != nil {
			utils.RespondError(c, fmt.Errorf("hash password: %w", err))
			return
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			return tx.Create(models.DefaultPreferences(user.ID)).Error
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("create user: %w", err))
			return
		}

		logger.Log.Info("User registered", logger.WithUserID(user.ID))
		issueToken(c, secret, &user, http.StatusCreated)
	}
}

func Login(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LoginInput
		if !bindJSON(c, &input) {
			return
		}

		var user models.User
		if err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).First(&user).Error; err != nil {
			utils.RespondError(c, apperrors.Unauthorized("invalid credentials"))
			return
		}
		if err := user.CheckPassword(input.Password); err != nil {
			utils.RespondError(c, apperrors.Unauthorized("invalid credentials"))
			return
		}

		issueToken(c, secret, &user, http.StatusOK)
	}
}

func Me(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var user models.User
		if err := db.First(&user, middleware.CurrentUserID(c)).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("user"))
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// VerifyGoogleIDToken validates a Google ID token with the idtoken package.
func VerifyGoogleIDToken(ctx context.Context, credential, audience string) (*GoogleIdentity, error) {
	payload, err := idtoken.Validate(ctx, credential, audience)
	if err != nil {
		return nil, err
	}
	identity := &GoogleIdentity{Subject: payload.Subject}
	identity.Email, _ = payload.Claims["email"].(string)
	identity.Name, _ = payload.Claims["name"].(string)
	identity.Picture, _ = payload.Claims["picture"].(string)
	return identity, nil
}

// GoogleSignIn accepts an ID token from Google Identity Services.
func GoogleSignIn(db *gorm.DB, secret, clientID string, verify GoogleTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if clientID == "" || verify == nil {
			utils.RespondError(c, apperrors.BadRequest("google sign-in is not configured"))
			return
		}
		var input struct {
			Credential string `json:"credential" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}

		identity, err := verify(c.Request.Context(), input.Credential, clientID)
		if err != nil {
			logger.Log.Warn("Google token rejected", zap.Error(err))
			utils.RespondError(c, apperrors.Unauthorized("invalid google credential"))
			return
		}

		user, err := findOrCreateGoogleUser(db, identity)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		issueToken(c, secret, user, http.StatusOK)
	}
}

// GoogleLogin starts the OAuth code flow.
func GoogleLogin(oc *oauth2.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if oc == nil {
			utils.RespondError(c, apperrors.BadRequest("google sign-in is not configured"))
			return
		}
		state := uuid.New().String()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(oauthStateCookie, state, 600, "/", "", c.Request.TLS != nil, true)
		c.Redirect(http.StatusTemporaryRedirect, oc.AuthCodeURL(state, oauth2.AccessTypeOnline))
	}
}

// GoogleCallback finishes the code flow and hands the token to the frontend.
func GoogleCallback(db *gorm.DB, oc *oauth2.Config, secret, frontendURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if oc == nil {
			utils.RespondError(c, apperrors.BadRequest("google sign-in is not configured"))
			return
		}
		expected, err := c.Cookie(oauthStateCookie)
		if err != nil || expected == "" || expected != c.Query("state") {
			utils.RespondError(c, apperrors.BadRequest("invalid oauth state"))
			return
		}
		c.SetCookie(oauthStateCookie, "", -1, "/", "", c.Request.TLS != nil, true)

		ctx := c.Request.Context()
		tok, err := oc.Exchange(ctx, c.Query("code"))
		if err != nil {
			logger.Log.Warn("OAuth code exchange failed", zap.Error(err))
			utils.RespondError(c, apperrors.Unauthorized("google sign-in failed"))
			return
		}

		svc, err := oauth2api.NewService(ctx, option.WithTokenSource(oc.TokenSource(ctx, tok)))
		if err != nil {
			utils.RespondError(c, fmt.Errorf("oauth2 service: %w", err))
			return
		}
		info, err := svc.Userinfo.Get().Context(ctx).Do()
		if err != nil {
			utils.RespondError(c, fmt.Errorf("fetch userinfo: %w", err))
			return
		}

		user, err := findOrCreateGoogleUser(db, &GoogleIdentity{
			Subject: info.Id,
			Email:   info.Email,
			Name:    info.Name,
			Picture: info.Picture,
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		token, err := utils.GenerateToken(user.ID, user.Email, string(user.Role), secret)
		if err != nil {
			utils.RespondError(c, fmt.Errorf("generate token: %w", err))
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, strings.TrimRight(frontendURL, "/")+"/auth/callback?token="+token)
	}
}

// findOrCreateGoogleUser links by Google ID, then by email, then creates a
// new account with a username derived from the email.
func findOrCreateGoogleUser(db *gorm.DB, identity *GoogleIdentity) (*models.User, error) {
	if identity.Subject == "" || identity.Email == "" {
		return nil, apperrors.Unauthorized("google account has no email")
	}
	email := strings.ToLower(identity.Email)

	var user models.User
	err := db.Where("google_id = ?", identity.Subject).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = db.Where("email = ?", email).First(&user).Error
	if err == nil {
		updates := map[string]interface{}{"google_id": identity.Subject, "is_verified": true}
		if user.AvatarURL == "" && identity.Picture != "" {
			updates["avatar_url"] = identity.Picture
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("link google account: %w", err)
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	username, err := uniqueUsername(db, email)
	if err != nil {
		return nil, err
	}
	sub := identity.Subject
	user = models.User{
		Username:   username,
		Email:      email,
		GoogleID:   &sub,
		Name:       identity.Name,
		AvatarURL:  identity.Picture,
		Role:       models.RoleUser,
		IsVerified: true,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(models.DefaultPreferences(user.ID)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create google user: %w", err)
	}
	logger.Log.Info("User registered with Google", logger.WithUserID(user.ID))
	return &user, nil
}

var usernameUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

func uniqueUsername(db *gorm.DB, email string) (string, error) {
	base := usernameUnsafe.ReplaceAllString(strings.ToLower(strings.SplitN(email, "@", 2)[0]), "")
	if len(base) < 3 {
		base = "user" + base
	}
	if len(base) > 24 {
		base = base[:24]
	}
	candidate := base
	for i := 1; i < 1000; i++ {
		var count int64
		if err := db.Model(&models.User{}).Unscoped().Where("username = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", fmt.Errorf("could not derive a free username from %q", base)
}

func RequestPasswordReset(db *gorm.DB, mailer services.Mailer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email string `json:"email" binding:"required,email"`
		}
		if !bindJSON(c, &input) {
			return
		}

		var user models.User
		if err := db.Where("email = ?", strings.ToLower(input.Email)).First(&user).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("user"))
			return
		}

		code, err := utils.GenerateOTP()
		if err != nil {
			utils.RespondError(c, fmt.Errorf("generate otp: %w", err))
			return
		}

		now := time.Now()
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.OTP{}).
				Where("user_id = ? AND type = ? AND used = ?", user.ID, models.OTPTypePasswordReset, false).
				Update("used", true).Error; err != nil {
				return err
			}
			return tx.Create(&models.OTP{
				UserID:    user.ID,
				Code:      code,
				Type:      models.OTPTypePasswordReset,
				ExpiresAt: now.Add(utils.OTPExpiration),
			}).Error
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("save otp: %w", err))
			return
		}

		subject, body := services.PasswordResetEmail(displayName(&user), code)
		if err := mailer.Send(c.Request.Context(), user.Email, subject, body); err != nil {
			utils.RespondError(c, fmt.Errorf("send reset email: %w", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "password reset code sent"})
	}
}

// findValidOTP returns the newest unused, unexpired reset code matching otp.
func findValidOTP(db *gorm.DB, email, otp string) (*models.User, *models.OTP, error) {
	var user models.User
	if err := db.Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, nil, apperrors.NotFound("user")
	}
	var record models.OTP
	err := db.Where("user_id = ? AND code = ? AND type = ? AND used = ?", user.ID, otp, models.OTPTypePasswordReset, false).
		Order("created_at DESC").First(&record).Error
	if err != nil || !record.IsValid(time.Now()) {
		return nil, nil, apperrors.Validation("otp", "invalid or expired code")
	}
	return &user, &record, nil
}

func VerifyOTP(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email string `json:"email" binding:"required,email"`
			OTP   string `json:"otp" binding:"required,len=6"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if _, _, err := findValidOTP(db, input.Email, input.OTP); err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true})
	}
}

func ResetPassword(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email       string `json:"email" binding:"required,email"`
			OTP         string `json:"otp" binding:"required,len=6"`
			NewPassword string `json:"newPassword" binding:"required,min=6"`
		}
		if !bindJSON(c, &input) {
			return
		}

		user, record, err := findValidOTP(db, input.Email, input.OTP)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		user.Password = input.NewPassword
		if err := user.HashPassword(); err != nil {
			utils.RespondError(c, fmt.Errorf("hash password: %w", err))
			return
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := record.MarkAsUsed(tx); err != nil {
				return err
			}
			return tx.Model(user).Update("password_hash", user.PasswordHash).Error
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("reset password: %w", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	}
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
