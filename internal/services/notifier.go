package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/metrics"
	"github.com/dinewithlocals/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// NotifyInput describes one notification for one user.
type NotifyInput struct {
	UserID     uint
	ActorID    uint
	Type       models.NotificationType
	Title      string
	Body       string
	EntityType string
	EntityID   uint
}

// Notifier persists notifications, pushes them on the websocket, and fans
// out to FCM and email in the background according to preferences.
type Notifier struct {
	db          *gorm.DB
	hub         *Hub
	pusher      Pusher
	mailer      Mailer
	metrics     *metrics.Metrics
	frontendURL string

	wg sync.WaitGroup
}

type NotifierOption func(*Notifier)

func WithPusher(p Pusher) NotifierOption {
	return func(n *Notifier) {
		if p != nil {
			n.pusher = p
		}
	}
}

func WithMailer(m Mailer) NotifierOption {
	return func(n *Notifier) { n.mailer = m }
}

func WithMetrics(m *metrics.Metrics) NotifierOption {
	return func(n *Notifier) { n.metrics = m }
}

func WithFrontendURL(url string) NotifierOption {
	return func(n *Notifier) { n.frontendURL = url }
}

func NewNotifier(db *gorm.DB, hub *Hub, opts ...NotifierOption) *Notifier {
	n := &Notifier{db: db, hub: hub}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify stores the notification and delivers it. Only the database write
// can fail the call; push and email errors are logged.
func (n *Notifier) Notify(ctx context.Context, in NotifyInput) (*models.Notification, error) {
	if in.UserID == 0 || (in.ActorID != 0 && in.ActorID == in.UserID) {
		return nil, nil
	}

	notification := &models.Notification{
		UserID:     in.UserID,
		Type:       in.Type,
		Title:      in.Title,
		Body:       in.Body,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
	}
	if in.ActorID != 0 {
		actor := in.ActorID
		notification.ActorID = &actor
	}
	if err := n.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("failed to save notification: %w", err)
	}

	if n.hub != nil {
		n.hub.SendToUser(in.UserID, EventNotification, notification)
		n.count("websocket")
	}

	if n.pusher != nil || n.mailer != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			n.deliverExternal(ctx, notification)
		}()
	}

	return notification, nil
}

// NotifyMany sends the same notification to several users concurrently.
// A failed recipient does not stop the others; their errors are joined.
func (n *Notifier) NotifyMany(ctx context.Context, userIDs []uint, in NotifyInput) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(8)
	for _, id := range userIDs {
		one := in
		one.UserID = id
		g.Go(func() error {
			if _, err := n.Notify(ctx, one); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("user %d: %w", one.UserID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Wait blocks until background deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliverExternal(ctx context.Context, notification *models.Notification) {
	var user models.User
	if err := n.db.WithContext(ctx).First(&user, notification.UserID).Error; err != nil {
		logger.Log.Warn("Notification recipient missing", logger.WithUserID(notification.UserID), zap.Error(err))
		return
	}
	prefs, err := LoadPreferences(ctx, n.db, user.ID)
	if err != nil {
		logger.Log.Warn("Failed to load notification preferences", logger.WithUserID(user.ID), zap.Error(err))
		return
	}
	if !prefs.Allows(notification.Type.Category()) {
		return
	}

	// push and email fail independently
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	if n.pusher != nil && prefs.PushEnabled && user.FCMToken != "" {
		g.Go(func() error {
			err := n.pusher.Push(ctx, user.FCMToken, PushPayload{
				Title: notification.Title,
				Body:  notification.Body,
				Data: map[string]string{
					"type":           string(notification.Type),
					"entityType":     notification.EntityType,
					"entityId":       fmt.Sprint(notification.EntityID),
					"notificationId": fmt.Sprint(notification.ID),
				},
			})
			if err != nil {
				if IsStaleToken(err) {
					if cerr := n.db.Model(&models.User{}).Where("id = ?", user.ID).Update("fcm_token", "").Error; cerr != nil {
						logger.Log.Warn("Failed to clear stale FCM token", logger.WithUserID(user.ID), zap.Error(cerr))
					}
				}
				fail(fmt.Errorf("push: %w", err))
				return nil
			}
			n.count("push")
			return nil
		})
	}
	if n.mailer != nil && prefs.EmailEnabled && user.Email != "" {
		g.Go(func() error {
			subject, body := NotificationEmail(n.frontendURL, notification.Title, notification.Body)
			if err := n.mailer.Send(ctx, user.Email, subject, body); err != nil {
				fail(fmt.Errorf("email: %w", err))
				return nil
			}
			n.count("email")
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		logger.Log.Warn("External notification delivery failed", logger.WithUserID(user.ID), zap.Error(err))
	}
}

func (n *Notifier) count(channel string) {
	if n.metrics != nil {
		n.metrics.NotificationsTotal.WithLabelValues(channel).Inc()
	}
}

// LoadPreferences returns the user's preferences, creating defaults on first use.
func LoadPreferences(ctx context.Context, db *gorm.DB, userID uint) (*models.NotificationPreference, error) {
	var prefs models.NotificationPreference
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error
	if err == nil {
		return &prefs, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	defaults := models.DefaultPreferences(userID)
	if err := db.WithContext(ctx).Create(defaults).Error; err != nil {
		return nil, err
	}
	return defaults, nil
}
