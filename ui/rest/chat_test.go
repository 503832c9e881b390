package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	domainChat "github.com/AzielCF/az-wabot/domains/chat"
	domainMessage "github.com/AzielCF/az-wabot/domains/message"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	"github.com/AzielCF/az-wabot/ui/rest/middleware"
)

type stubChatService struct {
	chats       []domainChat.Chat
	registerErr error
}

func (s *stubChatService) List(ctx context.Context) ([]domainChat.Chat, error) { return s.chats, nil }

func (s *stubChatService) Register(ctx context.Context, jid string) (domainChat.Chat, error) {
	if s.registerErr != nil {
		return domainChat.Chat{}, s.registerErr
	}
	return domainChat.Chat{ID: "c1", JID: jid, Enabled: true}, nil
}

func (s *stubChatService) Sync(ctx context.Context) ([]domainChat.Chat, error) { return s.chats, nil }

func (s *stubChatService) Delete(ctx context.Context, id string) error {
	if id != "c1" {
		return pkgError.NotFoundError("chat not found")
	}
	return nil
}

func (s *stubChatService) Messages(ctx context.Context, id string, limit int) ([]domainMessage.ProcessedMessage, error) {
	return nil, nil
}

func newChatApp(service domainChat.IChatUsecase) *fiber.App {
	app := fiber.New()
	app.Use(middleware.Recovery())
	InitRestChat(app, service)
	return app
}

func TestChatRegister_Success(t *testing.T) {
	app := newChatApp(&stubChatService{})

	req := httptest.NewRequest("POST", "/chats", strings.NewReader(`{"jid":"123@g.us"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
}

func TestChatRegister_DuplicateMapsTo409(t *testing.T) {
	app := newChatApp(&stubChatService{registerErr: pkgError.DuplicateError("chat already registered")})

	req := httptest.NewRequest("POST", "/chats", strings.NewReader(`{"jid":"123@g.us"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 409 {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var parsed struct {
		ErrorKind string `json:"error_kind"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("unmarshal error body: %v (%s)", err, body)
	}
	if parsed.ErrorKind != "Duplicate" {
		t.Fatalf("error_kind = %q, want Duplicate", parsed.ErrorKind)
	}
}

func TestChatDelete_NotFoundMapsTo404(t *testing.T) {
	app := newChatApp(&stubChatService{})

	resp, err := app.Test(httptest.NewRequest("DELETE", "/chats/missing", nil))
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChatRegister_MalformedBodyMapsTo400(t *testing.T) {
	app := newChatApp(&stubChatService{})

	req := httptest.NewRequest("POST", "/chats", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
