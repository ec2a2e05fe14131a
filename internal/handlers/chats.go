package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxMessageLength = 4000

type CreateChatInput struct {
	ParticipantIDs []uint `json:"participantIds" binding:"required,min=1"`
	ListingID      *uint  `json:"listingId"`
	Name           string `json:"name" binding:"max=100"`
}

func isParticipant(db *gorm.DB, chatID, userID uint) (bool, error) {
	var count int64
	err := db.Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

func addParticipants(tx *gorm.DB, chatID uint, userIDs []uint) error {
	rows := make([]models.ChatParticipant, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.ChatParticipant{ChatID: chatID, UserID: id})
	}
	return tx.Create(&rows).Error
}

// ensureDirectChat returns the 1:1 chat between a and b about listingID,
// creating it when missing. created reports whether a new chat was made.
func ensureDirectChat(tx *gorm.DB, a, b uint, listingID *uint) (*models.Chat, bool, error) {
	query := tx.Model(&models.Chat{}).
		Joins("JOIN chat_participants p1 ON p1.chat_id = chats.id AND p1.user_id = ?", a).
		Joins("JOIN chat_participants p2 ON p2.chat_id = chats.id AND p2.user_id = ?", b).
		Where("chats.is_group = ?", false)
	if listingID != nil {
		query = query.Where("chats.listing_id = ?", *listingID)
	} else {
		query = query.Where("chats.listing_id IS NULL")
	}

	var chat models.Chat
	err := query.First(&chat).Error
	if err == nil {
		return &chat, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("find direct chat: %w", err)
	}

	chat = models.Chat{ListingID: listingID}
	if err := tx.Create(&chat).Error; err != nil {
		return nil, false, fmt.Errorf("create chat: %w", err)
	}
	if err := addParticipants(tx, chat.ID, []uint{a, b}); err != nil {
		return nil, false, fmt.Errorf("add chat participants: %w", err)
	}
	return &chat, true, nil
}

func loadLastMessage(db *gorm.DB, chat *models.Chat) {
	var msg models.Message
	err := db.Preload("Sender").Where("chat_id = ?", chat.ID).Order("id DESC").First(&msg).Error
	if err == nil {
		chat.LastMessage = &msg
	}
}

// loadChat fetches a chat with participants and checks the caller is one.
func loadChat(c *gin.Context, db *gorm.DB) (*models.Chat, bool) {
	id, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var chat models.Chat
	if err := db.Preload("Participants").First(&chat, id).Error; err != nil {
		utils.RespondError(c, apperrors.NotFound("chat"))
		return nil, false
	}
	if !chat.HasParticipant(middleware.CurrentUserID(c)) {
		utils.RespondError(c, apperrors.Forbidden("you are not in this chat"))
		return nil, false
	}
	return &chat, true
}

// CreateChat opens a direct or group chat. Direct chats are reused.
func CreateChat(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateChatInput
		if !bindJSON(c, &input) {
			return
		}
		userID := middleware.CurrentUserID(c)

		seen := map[uint]bool{userID: true}
		members := []uint{userID}
		for _, id := range input.ParticipantIDs {
			if id != 0 && !seen[id] {
				seen[id] = true
				members = append(members, id)
			}
		}
		if len(members) < 2 {
			utils.RespondError(c, apperrors.Validation("participantIds", "a chat needs at least one other participant"))
			return
		}

		var found int64
		if err := db.Model(&models.User{}).Where("id IN ?", members).Count(&found).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		if int(found) != len(members) {
			utils.RespondError(c, apperrors.NotFound("user"))
			return
		}
		if input.ListingID != nil {
			var listing models.Listing
			if err := db.First(&listing, *input.ListingID).Error; err != nil {
				utils.RespondError(c, apperrors.NotFound("listing"))
				return
			}
		}

		var (
			chat    *models.Chat
			created = true
		)
		err := db.Transaction(func(tx *gorm.DB) error {
			if len(members) == 2 {
				var err error
				chat, created, err = ensureDirectChat(tx, members[0], members[1], input.ListingID)
				return err
			}
			chat = &models.Chat{
				Name:      strings.TrimSpace(input.Name),
				IsGroup:   true,
				ListingID: input.ListingID,
			}
			if err := tx.Create(chat).Error; err != nil {
				return err
			}
			return addParticipants(tx, chat.ID, members)
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("create chat: %w", err))
			return
		}

		warnIfFailed(db.Preload("Participants").First(chat, chat.ID).Error, "Failed to reload chat")
		loadLastMessage(db, chat)

		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		c.JSON(status, chat)
	}
}

// ListChats returns the caller's chats, most recently active first.
func ListChats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var chats []models.Chat
		if err := db.Preload("Participants").
			Joins("JOIN chat_participants cp ON cp.chat_id = chats.id").
			Where("cp.user_id = ?", middleware.CurrentUserID(c)).
			Order("COALESCE(chats.last_message_at, chats.created_at) DESC").
			Find(&chats).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list chats: %w", err))
			return
		}
		for i := range chats {
			loadLastMessage(db, &chats[i])
		}
		c.JSON(http.StatusOK, gin.H{"chats": chats})
	}
}

func GetChat(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		chat, ok := loadChat(c, db)
		if !ok {
			return
		}
		loadLastMessage(db, chat)
		c.JSON(http.StatusOK, chat)
	}
}

// GetMessages pages backwards from ?before= (a message id) and returns
// the page oldest first.
func GetMessages(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		chat, ok := loadChat(c, db)
		if !ok {
			return
		}
		page := utils.ParsePage(c, 50, 100)

		query := db.Preload("Sender").Where("chat_id = ?", chat.ID)
		if raw := c.Query("before"); raw != "" {
			before, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				utils.RespondError(c, apperrors.Validation("before", "before must be a message id"))
				return
			}
			query = query.Where("id < ?", before)
		}

		var messages []models.Message
		if err := query.Order("id DESC").Limit(page.Limit + 1).Find(&messages).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list messages: %w", err))
			return
		}
		hasMore := len(messages) > page.Limit
		if hasMore {
			messages = messages[:page.Limit]
		}
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}

		c.JSON(http.StatusOK, gin.H{"messages": messages, "hasMore": hasMore})
	}
}

// ChatMessenger persists chat messages and fans them out. REST and the
// websocket share it.
type ChatMessenger struct {
	db       *gorm.DB
	hub      *services.Hub
	notifier *services.Notifier
}

func NewChatMessenger(db *gorm.DB, hub *services.Hub, notifier *services.Notifier) *ChatMessenger {
	return &ChatMessenger{db: db, hub: hub, notifier: notifier}
}

// Post stores a message from senderID and broadcasts it to the room.
// Participants not watching the chat get a notification.
func (m *ChatMessenger) Post(ctx context.Context, chatID, senderID uint, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("content", "message cannot be empty")
	}
	if len(content) > maxMessageLength {
		return nil, apperrors.Validation("content", fmt.Sprintf("message is longer than %d characters", maxMessageLength))
	}

	var chat models.Chat
	if err := m.db.WithContext(ctx).Preload("Participants").First(&chat, chatID).Error; err != nil {
		return nil, apperrors.NotFound("chat")
	}
	if !chat.HasParticipant(senderID) {
		return nil, apperrors.Forbidden("you are not in this chat")
	}

	msg := models.Message{ChatID: chatID, SenderID: senderID, Content: content}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&chat).Update("last_message_at", time.Now()).Error
	})
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	m.db.WithContext(ctx).Preload("Sender").First(&msg, msg.ID)

	if m.hub != nil {
		m.hub.SendToRoom(chatID, services.EventNewMessage, msg, 0)
	}

	if m.notifier != nil {
		var away []uint
		for _, id := range chat.ParticipantIDs() {
			if id != senderID && (m.hub == nil || !m.hub.InRoom(id, chatID)) {
				away = append(away, id)
			}
		}
		if len(away) > 0 {
			err := m.notifier.NotifyMany(ctx, away, services.NotifyInput{
				ActorID:    senderID,
				Type:       models.NotificationNewMessage,
				Title:      "New message from " + displayName(&msg.Sender),
				Body:       preview(content, 120),
				EntityType: "chat",
				EntityID:   chatID,
			})
			if err != nil {
				logger.Log.Warn("Failed to notify chat participants", logger.WithChatID(chatID), zap.Error(err))
			}
		}
	}
	return &msg, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func SendMessage(messenger *ChatMessenger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}
		var input struct {
			Content string `json:"content" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		msg, err := messenger.Post(c.Request.Context(), id, middleware.CurrentUserID(c), input.Content)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

// AddParticipant adds a user to a group chat.
func AddParticipant(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		chat, ok := loadChat(c, db)
		if !ok {
			return
		}
		if !chat.IsGroup {
			utils.RespondError(c, apperrors.BadRequest("participants can only be added to group chats"))
			return
		}
		var input struct {
			UserID uint `json:"userId" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if chat.HasParticipant(input.UserID) {
			c.JSON(http.StatusOK, chat)
			return
		}
		var user models.User
		if err := db.First(&user, input.UserID).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("user"))
			return
		}
		if err := addParticipants(db, chat.ID, []uint{user.ID}); err != nil {
			utils.RespondError(c, fmt.Errorf("add participant: %w", err))
			return
		}
		warnIfFailed(db.Preload("Participants").First(chat, chat.ID).Error, "Failed to reload chat")
		c.JSON(http.StatusOK, chat)
	}
}

// LeaveChat removes the caller from a chat and its websocket room.
func LeaveChat(db *gorm.DB, hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		chat, ok := loadChat(c, db)
		if !ok {
			return
		}
		userID := middleware.CurrentUserID(c)
		if err := db.Where("chat_id = ? AND user_id = ?", chat.ID, userID).
			Delete(&models.ChatParticipant{}).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("leave chat: %w", err))
			return
		}
		if hub != nil {
			hub.LeaveAll(userID, chat.ID)
		}
		c.Status(http.StatusNoContent)
	}
}
