package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("socket not connected")

// APIError is a non-2xx REST response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Config struct {
	BaseURL    string
	Token      string
	UserID     string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	// MaxRetries bounds retries of idempotent REST calls on transport and
	// 5xx errors. Message sends are never retried automatically.
	MaxRetries uint64
	Logger     *zap.Logger

	OnNotification func(*domain.Notification)
	OnTyping       func(protocol.UserTyping)
	OnError        func(string)
}

// Client holds one socket per session and falls back to REST while the
// socket is down.
type Client struct {
	cfg Config

	mu    sync.Mutex
	conn  *websocket.Conn
	convs map[string]*Conversation
	done  chan struct{}

	writeMu sync.Mutex
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{cfg: cfg, convs: make(map[string]*Conversation)}
}

// Connect opens the socket and starts routing server events.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/ws")
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()

	conn, _, err := c.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()
	go c.readLoop(conn, done)
	return nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Done is closed when the current socket stops reading.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Conversation returns the open view with peer, creating it if needed.
func (c *Client) Conversation(peer string) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.convs[peer]
	if !ok {
		conv = NewConversation(c.cfg.UserID, peer)
		c.convs[peer] = conv
	}
	return conv
}

func (c *Client) open(peer string) (*Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.convs[peer]
	return conv, ok
}

// Open loads the history with peer into its conversation.
func (c *Client) Open(ctx context.Context, peer string) (*Conversation, error) {
	var resp struct {
		Messages []*domain.Message `json:"messages"`
	}
	if err := c.rest(ctx, http.MethodGet, "/api/chat/conversations/"+url.PathEscape(peer), nil, &resp, c.cfg.MaxRetries); err != nil {
		return nil, err
	}
	conv := c.Conversation(peer)
	conv.LoadHistory(resp.Messages)
	return conv, nil
}

// Send adds a provisional entry and ships it over the socket, or over REST
// when the socket is down. A REST failure marks the entry failed and is left
// to the caller to Retry: the server does not deduplicate sends.
func (c *Client) Send(ctx context.Context, peer, body string) (Entry, error) {
	conv := c.Conversation(peer)
	e := conv.AddProvisional(body)
	return e, c.deliver(ctx, conv, e)
}

// Retry resends a failed provisional entry.
func (c *Client) Retry(ctx context.Context, peer, tempID string) (Entry, error) {
	conv, ok := c.open(peer)
	if !ok {
		return Entry{}, fmt.Errorf("no conversation with %s", peer)
	}
	e, ok := conv.Retry(tempID)
	if !ok {
		return Entry{}, fmt.Errorf("%s is not a failed message", tempID)
	}
	return e, c.deliver(ctx, conv, e)
}

func (c *Client) deliver(ctx context.Context, conv *Conversation, e Entry) error {
	payload := protocol.SendMessage{
		RecipientID:     e.RecipientID,
		Message:         e.Body,
		ClientMessageID: e.ClientMessageID,
	}
	err := c.emit(protocol.TypeSendMessage, payload)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotConnected) {
		c.cfg.Logger.Warn("socket send failed, using REST", zap.Error(err))
	}

	var resp struct {
		Message *domain.Message `json:"message"`
	}
	if err := c.rest(ctx, http.MethodPost, "/api/chat/messages", payload, &resp, 0); err != nil {
		conv.Fail(e.ID)
		return err
	}
	if resp.Message != nil {
		conv.ApplyConfirmation(resp.Message)
	}
	return nil
}

// MarkRead marks everything peer sent as read.
func (c *Client) MarkRead(ctx context.Context, peer string) error {
	payload := protocol.MarkRead{SenderID: peer}
	err := c.emit(protocol.TypeMarkRead, payload)
	if errors.Is(err, ErrNotConnected) {
		err = c.rest(ctx, http.MethodPost, "/api/chat/messages/read", payload, nil, c.cfg.MaxRetries)
	}
	if err != nil {
		return err
	}
	if conv, ok := c.open(peer); ok {
		conv.markIncomingRead()
	}
	return nil
}

// Typing is socket only. It is dropped while disconnected.
func (c *Client) Typing(peer string, isTyping bool) error {
	err := c.emit(protocol.TypeTyping, protocol.Typing{RecipientID: peer, IsTyping: isTyping})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// ExpirePending fails provisional entries past the soft timeout in every
// open conversation.
func (c *Client) ExpirePending(now time.Time) int {
	c.mu.Lock()
	convs := make([]*Conversation, 0, len(c.convs))
	for _, conv := range c.convs {
		convs = append(convs, conv)
	}
	c.mu.Unlock()
	n := 0
	for _, conv := range convs {
		n += len(conv.ExpireProvisional(now))
	}
	return n
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) emit(eventType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(protocol.Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.dropConn(conn)
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer c.dropConn(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.cfg.Logger.Warn("socket closed", zap.Error(err))
			}
			return
		}
		if err := c.route(data); err != nil {
			c.cfg.Logger.Warn("dropping server event", zap.Error(err))
		}
	}
}

func (c *Client) route(data []byte) error {
	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	switch env.Type {
	case protocol.TypeMessageSent, protocol.TypeNewMessage:
		var m domain.Message
		if err := env.Bind(&m); err != nil {
			return err
		}
		conv, ok := c.open(m.Counterpart(c.cfg.UserID))
		if !ok {
			return nil
		}
		if m.SenderID == c.cfg.UserID {
			conv.ApplyConfirmation(&m)
		} else {
			conv.ApplyMessage(&m)
		}
	case protocol.TypeMessagesRead:
		var p protocol.MessagesRead
		if err := env.Bind(&p); err != nil {
			return err
		}
		if conv, ok := c.open(p.RecipientID); ok {
			conv.ApplyRead(p.RecipientID)
		}
	case protocol.TypeUserTyping:
		var p protocol.UserTyping
		if err := env.Bind(&p); err != nil {
			return err
		}
		if c.cfg.OnTyping != nil {
			c.cfg.OnTyping(p)
		}
	case protocol.TypeNewNotification:
		var p protocol.NewNotification
		if err := env.Bind(&p); err != nil {
			return err
		}
		if c.cfg.OnNotification != nil && p.Notification != nil {
			c.cfg.OnNotification(p.Notification)
		}
	case protocol.TypeError:
		var p protocol.Error
		if err := env.Bind(&p); err != nil {
			return err
		}
		if c.cfg.OnError != nil {
			c.cfg.OnError(p.Message)
		}
	case protocol.TypeMarkReadSuccess:
	default:
		return fmt.Errorf("unknown event %q", env.Type)
	}
	return nil
}

// rest performs one API call. Transport failures and 5xx responses are
// retried up to retries times with exponential backoff.
func (c *Client) rest(ctx context.Context, method, path string, in, out any, retries uint64) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = b
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode, Message: errorText(raw)}
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.cfg.Logger.Debug("retrying api call", zap.String("path", path), zap.Duration("wait", wait), zap.Error(err))
	})
}

func errorText(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
