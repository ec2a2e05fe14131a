package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WebSocketHandler upgrades an authenticated request to a websocket.
func WebSocketHandler(hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request, middleware.CurrentUserID(c))
	}
}

type chatRef struct {
	ChatID uint `json:"chatId"`
}

// NewInboundHandler handles the chat messages clients send over the socket.
func NewInboundHandler(db *gorm.DB, messenger *ChatMessenger) services.InboundHandler {
	return func(client *services.Client, msg services.Inbound) {
		switch msg.Type {
		case services.MessageJoinChat:
			ref, ok := parseChatRef(client, msg.Data)
			if !ok {
				return
			}
			member, err := isParticipant(db, ref.ChatID, client.UserID)
			if err != nil || !member {
				client.SendError("you are not in this chat")
				return
			}
			client.Hub.Join(client, ref.ChatID)
			client.SendEvent(services.EventJoinedChat, ref)

		case services.MessageSendMessage:
			var body struct {
				ChatID  uint   `json:"chatId"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(msg.Data, &body); err != nil || body.ChatID == 0 {
				client.SendError("chatId is required")
				return
			}
			if _, err := messenger.Post(context.Background(), body.ChatID, client.UserID, body.Content); err != nil {
				var apiErr *apperrors.APIError
				if errors.As(err, &apiErr) {
					client.SendError(apiErr.Message)
					return
				}
				logger.Log.Error("Failed to post websocket message", logger.WithUserID(client.UserID), zap.Error(err))
				client.SendError("could not send message")
			}

		case services.MessageTyping:
			ref, ok := parseChatRef(client, msg.Data)
			if !ok {
				return
			}
			if !client.Hub.InRoom(client.UserID, ref.ChatID) {
				client.SendError("join the chat first")
				return
			}
			client.Hub.SendToRoom(ref.ChatID, services.EventUserTyping, gin.H{
				"chatId": ref.ChatID,
				"userId": client.UserID,
			}, client.UserID)

		default:
			client.SendError("unknown message type")
		}
	}
}

func parseChatRef(client *services.Client, data json.RawMessage) (chatRef, bool) {
	var ref chatRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.ChatID == 0 {
		client.SendError("chatId is required")
		return ref, false
	}
	return ref, true
}
