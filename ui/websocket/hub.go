package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	domainMessage "github.com/AzielCF/az-wabot/domains/message"
	domainSchedule "github.com/AzielCF/az-wabot/domains/schedule"
)

// event is the wire envelope pushed to every connected observer.
type event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type messageProcessedPayload struct {
	ChatJID           string               `json:"chat_jid"`
	BotInstanceID     string               `json:"bot_instance_id"`
	ExternalMessageID string               `json:"external_message_id"`
	Status            domainMessage.Status `json:"status"`
	ErrorKind         string               `json:"error_kind,omitempty"`
	ProcessedAt       time.Time            `json:"processed_at"`
}

type scheduleFiredPayload struct {
	ScheduleID string                `json:"schedule_id"`
	FiredAt    time.Time             `json:"fired_at"`
	Result     domainSchedule.Result `json:"result"`
}

// Hub fans dispatch and schedule events out to websocket observers. Slow
// clients are dropped rather than allowed to block publishers.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *Hub) PublishMessageProcessed(chatJID string, row domainMessage.ProcessedMessage) {
	h.broadcast(event{Type: "message_processed", Payload: messageProcessedPayload{
		ChatJID:           chatJID,
		BotInstanceID:     row.BotInstanceID,
		ExternalMessageID: row.ExternalMessageID,
		Status:            row.Status,
		ErrorKind:         row.ErrorKind,
		ProcessedAt:       row.ProcessedAt,
	}})
}

func (h *Hub) PublishScheduleFired(scheduleID string, firedAt time.Time, result domainSchedule.Result) {
	h.broadcast(event{Type: "schedule_fired", Payload: scheduleFiredPayload{
		ScheduleID: scheduleID,
		FiredAt:    firedAt,
		Result:     result,
	}})
}

func (h *Hub) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logrus.WithError(err).Error("[WS] Failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Client not keeping up.
			close(ch)
			delete(h.clients, conn)
			logrus.Warn("[WS] Dropped slow websocket client")
		}
	}
}

// Handler upgrades /ws/events connections. Auth is a token query param
// since browsers cannot set headers on websocket upgrades.
func (h *Hub) Handler(secret string) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		token := conn.Query("token")
		if !validToken(token, secret) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"))
			_ = conn.Close()
			return
		}

		ch := make(chan []byte, 64)
		h.mu.Lock()
		h.clients[conn] = ch
		h.mu.Unlock()

		defer func() {
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				close(ch)
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			_ = conn.Close()
		}()

		// Reader goroutine notices client disconnects.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case data, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}

func validToken(tokenString, secret string) bool {
	if tokenString == "" {
		return false
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	return err == nil && token.Valid
}
