package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainChat "github.com/AzielCF/az-wabot/domains/chat"
	domainMessage "github.com/AzielCF/az-wabot/domains/message"
	"github.com/AzielCF/az-wabot/domains/store"
	"github.com/AzielCF/az-wabot/infrastructure/gateway"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	"github.com/AzielCF/az-wabot/validations"
)

// ProcessorControl is the slice of the processor the services drive:
// poller lifecycle on chat changes and wake-ups on assignment changes.
type ProcessorControl interface {
	EnsureChat(chatID string)
	DropChat(chatID string)
	Wake(chatID string)
}

// ChatGateway is the slice of the gateway client the chat service uses.
type ChatGateway interface {
	ListChats(ctx context.Context) ([]gateway.Chat, error)
}

type chatService struct {
	store store.IStore
	gw    ChatGateway
	proc  ProcessorControl
}

func NewChatService(st store.IStore, gw ChatGateway, proc ProcessorControl) domainChat.IChatUsecase {
	return &chatService{store: st, gw: gw, proc: proc}
}

func (s *chatService) List(ctx context.Context) ([]domainChat.Chat, error) {
	return s.store.ListChats(ctx)
}

// Register enrolls one gateway conversation for polling. The JID must
// exist on the gateway and must not be registered yet.
func (s *chatService) Register(ctx context.Context, jid string) (domainChat.Chat, error) {
	if err := validations.ValidateRegisterChat(ctx, jid); err != nil {
		return domainChat.Chat{}, err
	}

	if _, err := s.store.GetChatByJID(ctx, jid); err == nil {
		return domainChat.Chat{}, pkgError.DuplicateError("chat already registered")
	} else {
		var nf pkgError.NotFoundError
		if !errors.As(err, &nf) {
			return domainChat.Chat{}, err
		}
	}

	remote, err := s.lookupGatewayChat(ctx, jid)
	if err != nil {
		return domainChat.Chat{}, err
	}

	now := time.Now().UTC()
	chat := domainChat.Chat{
		ID:        uuid.NewString(),
		JID:       remote.JID,
		Name:      remote.Name,
		Kind:      domainChat.Kind(remote.Kind),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return domainChat.Chat{}, err
	}
	s.proc.EnsureChat(chat.ID)
	logrus.Infof("[CHAT] Registered chat %s (%s)", chat.JID, chat.ID)
	return chat, nil
}

// Sync refreshes registered chats' names and kinds from the gateway.
func (s *chatService) Sync(ctx context.Context) ([]domainChat.Chat, error) {
	remote, err := s.gw.ListChats(ctx)
	if err != nil {
		return nil, pkgError.GatewayError(err.Error())
	}
	byJID := make(map[string]gateway.Chat, len(remote))
	for _, rc := range remote {
		byJID[rc.JID] = rc
	}

	chats, err := s.store.ListChats(ctx)
	if err != nil {
		return nil, err
	}
	for i, c := range chats {
		rc, known := byJID[c.JID]
		if !known {
			continue
		}
		if c.Name != rc.Name || c.Kind != domainChat.Kind(rc.Kind) {
			c.Name = rc.Name
			c.Kind = domainChat.Kind(rc.Kind)
			c.UpdatedAt = time.Now().UTC()
			if err := s.store.UpdateChat(ctx, c); err != nil {
				return nil, err
			}
			chats[i] = c
		}
		if !rc.LastActivity.IsZero() {
			if err := s.store.TouchChatActivity(ctx, c.ID, rc.LastActivity); err != nil {
				return nil, err
			}
		}
	}
	return chats, nil
}

func (s *chatService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteChat(ctx, id); err != nil {
		return err
	}
	s.proc.DropChat(id)
	logrus.Infof("[CHAT] Deleted chat %s", id)
	return nil
}

func (s *chatService) Messages(ctx context.Context, id string, limit int) ([]domainMessage.ProcessedMessage, error) {
	if _, err := s.store.GetChat(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListProcessedForChat(ctx, id, limit)
}

func (s *chatService) lookupGatewayChat(ctx context.Context, jid string) (gateway.Chat, error) {
	remote, err := s.gw.ListChats(ctx)
	if err != nil {
		return gateway.Chat{}, pkgError.GatewayError(err.Error())
	}
	for _, rc := range remote {
		if rc.JID == jid {
			return rc, nil
		}
	}
	return gateway.Chat{}, pkgError.NotFoundError("chat not found on gateway")
}
