package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AzielCF/az-wabot/core/config"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout  = 30 * time.Second
	downloadTimeout = 60 * time.Second

	// Download bodies are read through a hard ceiling so a misbehaving
	// gateway cannot exhaust memory; the per-media caps are enforced by
	// the bot kernel.
	maxDownloadBytes = 100*1024*1024 + 1
)

// Chat is the gateway's view of a conversation.
type Chat struct {
	JID          string    `json:"jid"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	LastActivity time.Time `json:"last_activity"`
}

// Message is one inbound or outbound message as the gateway reports it.
type Message struct {
	ID        string    `json:"id"`
	SenderJID string    `json:"sender_jid"`
	IsFromMe  bool      `json:"is_from_me"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	MediaType string    `json:"media_type,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`
}

// Client is the typed HTTP client for the WhatsApp gateway. It performs
// no retries itself; transient failures surface as retriable typed errors
// for the processor to back off on.
type Client struct {
	baseURL  string
	token    string
	user     string
	password string
	http     *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		user:     cfg.User,
		password: cfg.Password,
		// Timeouts are per-call contexts so shutdown cancellation
		// propagates; the client itself has none.
		http: &http.Client{},
	}
}

func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.getJSON(ctx, "/chats", requestTimeout, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// FetchMessages returns messages strictly newer than sinceID (when not
// empty), oldest first, capped at limit.
func (c *Client) FetchMessages(ctx context.Context, chatJID, sinceID string, limit int) ([]Message, error) {
	q := url.Values{}
	if sinceID != "" {
		q.Set("since", sinceID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/chats/" + url.PathEscape(chatJID) + "/messages"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var msgs []Message
	if err := c.getJSON(ctx, path, requestTimeout, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) SendText(ctx context.Context, chatJID, text string) (string, error) {
	body, _ := json.Marshal(map[string]string{"text": text})
	path := "/chats/" + url.PathEscape(chatJID) + "/send"

	resp, err := c.do(ctx, http.MethodPost, path, strings.NewReader(string(body)), requestTimeout)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", errorFromStatus(resp.StatusCode, readSnippet(resp.Body))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &Error{Kind: KindMalformed, Message: fmt.Sprintf("decode send response: %v", err)}
	}
	logrus.WithFields(logrus.Fields{"chat_jid": chatJID, "sent_id": result.ID}).Debug("[GATEWAY] Text sent")
	return result.ID, nil
}

// DownloadMedia fetches the decrypted media body of a message. Returns the
// bytes and the Content-Type reported by the gateway.
func (c *Client) DownloadMedia(ctx context.Context, messageID string) ([]byte, string, error) {
	path := "/messages/" + url.PathEscape(messageID) + "/download"

	resp, err := c.do(ctx, http.MethodGet, path, nil, downloadTimeout)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errorFromStatus(resp.StatusCode, readSnippet(resp.Body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", &Error{Kind: KindNetwork, Message: fmt.Sprintf("read media body: %v", err)}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// --- internals ---

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, timeout time.Duration) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		cancel()
		return nil, &Error{Kind: KindMalformed, Message: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, timeout time.Duration, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromStatus(resp.StatusCode, readSnippet(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindMalformed, Message: fmt.Sprintf("decode %s: %v", path, err)}
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

// cancelReadCloser ties the per-request context cancel to body close.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
