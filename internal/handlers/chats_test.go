package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type ChatSuite struct {
	apiSuite
	ana, ben           *models.User
	anaToken, benToken string
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, new(ChatSuite))
}

func (s *ChatSuite) SetupTest() {
	s.apiSuite.SetupTest()
	s.ana, s.anaToken = s.user("ana")
	s.ben, s.benToken = s.user("ben")
}

func (s *ChatSuite) createChat(token string, body gin.H, wantStatus int) models.Chat {
	w := s.do(http.MethodPost, "/api/chats", token, body)
	s.Require().Equal(wantStatus, w.Code, w.Body.String())
	var chat models.Chat
	s.decode(w, &chat)
	return chat
}

func (s *ChatSuite) TestDirectChatsAreDeduplicated() {
	first := s.createChat(s.anaToken, gin.H{"participantIds": []uint{s.ben.ID}}, http.StatusCreated)
	s.ElementsMatch([]uint{s.ana.ID, s.ben.ID}, first.ParticipantIDs())
	s.False(first.IsGroup)

	again := s.createChat(s.benToken, gin.H{"participantIds": []uint{s.ana.ID}}, http.StatusOK)
	s.Equal(first.ID, again.ID)

	// a chat about a listing is a separate conversation
	loc := testutil.CreateLocation(s.T(), s.db, "Lavington", -1.2775, 36.7691)
	listing := testutil.CreateListing(s.T(), s.db, s.ana, loc, 10, 2)
	about := s.createChat(s.benToken, gin.H{"participantIds": []uint{s.ana.ID}, "listingId": listing.ID}, http.StatusCreated)
	s.NotEqual(first.ID, about.ID)
}

func (s *ChatSuite) TestCreateChatValidation() {
	w := s.do(http.MethodPost, "/api/chats", s.anaToken, gin.H{"participantIds": []uint{s.ana.ID}})
	s.Equal(http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPost, "/api/chats", s.anaToken, gin.H{"participantIds": []uint{4242}})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *ChatSuite) TestGroupChatParticipants() {
	cleo, cleoToken := s.user("cleo")
	dan, _ := s.user("dan")
	group := s.createChat(s.anaToken, gin.H{"participantIds": []uint{s.ben.ID, cleo.ID}, "name": "Supper club"}, http.StatusCreated)
	s.True(group.IsGroup)
	s.Len(group.Participants, 3)

	// groups are never deduplicated
	s.createChat(s.anaToken, gin.H{"participantIds": []uint{s.ben.ID, cleo.ID}}, http.StatusCreated)

	w := s.do(http.MethodPost, fmt.Sprintf("/api/chats/%d/participants", group.ID), s.benToken, gin.H{"userId": dan.ID})
	s.Require().Equal(http.StatusOK, w.Code)
	var updated models.Chat
	s.decode(w, &updated)
	s.Len(updated.Participants, 4)

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/chats/%d/participants/me", group.ID), cleoToken, nil)
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, fmt.Sprintf("/api/chats/%d", group.ID), cleoToken, nil).Code)

	direct := s.createChat(s.anaToken, gin.H{"participantIds": []uint{s.ben.ID}}, http.StatusCreated)
	w = s.do(http.MethodPost, fmt.Sprintf("/api/chats/%d/participants", direct.ID), s.anaToken, gin.H{"userId": dan.ID})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ChatSuite) TestMessagesPersistAndPage() {
	chat := s.createChat(s.anaToken, gin.H{"participantIds": []uint{s.ben.ID}}, http.StatusCreated)
	path := fmt.Sprintf("/api/chats/%d/messages", chat.ID)

	for i := 1; i <= 5; i++ {
		w := s.do(http.MethodPost, path, s.anaToken, gin.H{"content": fmt.Sprintf("message %d", i)})
		s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	}
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, path, s.anaToken, gin.H{"content": "   "}).Code)

	_, eveToken := s.user("eve")
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, path, eveToken, gin.H{"content": "hi"}).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, path, eveToken, nil).Code)

	var page struct {
		Messages []models.Message `json:"messages"`
		HasMore  bool             `json:"hasMore"`
	}
	s.decode(s.do(http.MethodGet, path+"?limit=2", s.benToken, nil), &page)
	s.Require().Len(page.Messages, 2)
	s.True(page.HasMore)
	s.Equal("message 4", page.Messages[0].Content)
	s.Equal("message 5", page.Messages[1].Content)

	s.decode(s.do(http.MethodGet, fmt.Sprintf("%s?limit=10&before=%d", path, page.Messages[0].ID), s.benToken, nil), &page)
	s.Require().Len(page.Messages, 3)
	s.False(page.HasMore)
	s.Equal("message 1", page.Messages[0].Content)

	// ben is not watching the chat, so each message notified him
	s.Equal(int64(5), s.notificationsFor(s.ben.ID, models.NotificationNewMessage))
	s.Zero(s.notificationsFor(s.ana.ID, models.NotificationNewMessage))

	var chats struct {
		Chats []models.Chat `json:"chats"`
	}
	s.decode(s.do(http.MethodGet, "/api/chats", s.benToken, nil), &chats)
	s.Require().Len(chats.Chats, 1)
	s.Require().NotNil(chats.Chats[0].LastMessage)
	s.Equal("message 5", chats.Chats[0].LastMessage.Content)
	s.NotNil(chats.Chats[0].LastMessageAt)
}

func (s *ChatSuite) dial(server *httptest.Server, token string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	resp.Body.Close()
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

func (s *ChatSuite) send(conn *websocket.Conn, typ string, data interface{}) {
	s.Require().NoError(conn.WriteJSON(gin.H{"type": typ, "data": data}))
}

// next reads events until one of type typ arrives.
func (s *ChatSuite) next(conn *websocket.Conn, typ string) json.RawMessage {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		s.Require().NoError(conn.ReadJSON(&ev))
		if ev.Type == typ {
			return ev.Data
		}
	}
}

func (s *ChatSuite) TestWebSocketChat() {
	server := httptest.NewServer(s.router)
	defer server.Close()

	chat := s.createChat(s.anaToken, gin.H{"participantIds": []uint{s.ben.ID}}, http.StatusCreated)
	anaConn := s.dial(server, s.anaToken)
	benConn := s.dial(server, s.benToken)

	s.send(anaConn, services.MessagePing, nil)
	s.next(anaConn, services.EventPong)

	s.send(anaConn, services.MessageJoinChat, gin.H{"chatId": chat.ID})
	s.next(anaConn, services.EventJoinedChat)
	s.send(benConn, services.MessageJoinChat, gin.H{"chatId": chat.ID})
	s.next(benConn, services.EventJoinedChat)

	s.send(anaConn, services.MessageTyping, gin.H{"chatId": chat.ID})
	var typing struct {
		ChatID uint `json:"chatId"`
		UserID uint `json:"userId"`
	}
	s.Require().NoError(json.Unmarshal(s.next(benConn, services.EventUserTyping), &typing))
	s.Equal(s.ana.ID, typing.UserID)

	s.send(benConn, services.MessageSendMessage, gin.H{"chatId": chat.ID, "content": "over the socket"})
	var msg models.Message
	s.Require().NoError(json.Unmarshal(s.next(anaConn, services.EventNewMessage), &msg))
	s.Equal("over the socket", msg.Content)
	s.Equal(s.ben.ID, msg.SenderID)
	// the sender's own connection gets the echo too
	s.next(benConn, services.EventNewMessage)

	w := s.do(http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", chat.ID), s.anaToken, gin.H{"content": "over rest"})
	s.Require().Equal(http.StatusCreated, w.Code)
	s.Require().NoError(json.Unmarshal(s.next(benConn, services.EventNewMessage), &msg))
	s.Equal("over rest", msg.Content)

	// both were in the room, nobody was notified
	s.Zero(s.notificationsFor(s.ana.ID, models.NotificationNewMessage))
	s.Zero(s.notificationsFor(s.ben.ID, models.NotificationNewMessage))

	_, eveToken := s.user("eve")
	eveConn := s.dial(server, eveToken)
	s.send(eveConn, services.MessageJoinChat, gin.H{"chatId": chat.ID})
	s.next(eveConn, services.EventError)
}

func (s *ChatSuite) TestWebSocketRequiresToken() {
	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}
