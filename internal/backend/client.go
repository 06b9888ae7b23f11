// Package backend is the REST client for the recruiting platform's
// messaging endpoints. It owns the wire boundary: ids and timestamps are
// canonicalized here so the rest of the engine only sees strings and
// Unix milliseconds.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hireloop/chatsync/internal/exchange"
	"github.com/hireloop/chatsync/internal/model"
	"go.uber.org/zap"
)

// MessagePage is one page of a conversation's history.
type MessagePage struct {
	Messages   []model.Message
	TotalCount int
}

// SendRequest carries a message send.
type SendRequest struct {
	ConversationID string
	SenderID       string
	RecipientID    string
	Body           string
	Type           model.MessageType
	Quoted         *model.QuotedMessage
}

// API is the set of collaborator operations the engine consumes.
type API interface {
	FetchConversations(ctx context.Context, viewerID, role string) ([]model.Conversation, error)
	FetchMessages(ctx context.Context, conversationID string, limit, offset int) (MessagePage, error)
	SendMessage(ctx context.Context, req SendRequest) (model.Message, error)
	DeleteMessage(ctx context.Context, messageID, deletedBy string) error
	UpdateConversationStatus(ctx context.Context, conversationID, role, action string) error
	UpdateExchangeStatus(ctx context.Context, messageID string, action exchange.Action, actorID string) error
	MarkAllRead(ctx context.Context, viewerID, role string) error
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *Client) FetchConversations(ctx context.Context, viewerID, role string) ([]model.Conversation, error) {
	q := url.Values{"viewer_id": {viewerID}, "role": {role}}
	var dtos []conversationDTO
	if err := c.do(ctx, http.MethodGet, "/api/conversations?"+q.Encode(), nil, &dtos); err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	out := make([]model.Conversation, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out, nil
}

// FetchMessages requests one page of history, newest-first on the wire,
// and returns it re-ordered ascending as the store expects.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, limit, offset int) (MessagePage, error) {
	q := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
		"order":  {"desc"},
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()
	var dto messagePageDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return MessagePage{}, fmt.Errorf("fetch messages: %w", err)
	}
	page := MessagePage{TotalCount: dto.TotalCount}
	for i := len(dto.Messages) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, dto.Messages[i].toModel(conversationID))
	}
	return page, nil
}

func (c *Client) SendMessage(ctx context.Context, req SendRequest) (model.Message, error) {
	body := map[string]any{
		"sender_id":    req.SenderID,
		"recipient_id": req.RecipientID,
		"body":         req.Body,
		"type":         string(req.Type),
	}
	if req.Quoted != nil {
		body["quoted_message"] = map[string]string{
			"id":          req.Quoted.ID,
			"text":        req.Quoted.Text,
			"sender_name": req.Quoted.SenderName,
			"type":        string(req.Quoted.Type),
		}
	}
	path := "/api/conversations/" + url.PathEscape(req.ConversationID) + "/messages"
	var dto messageDTO
	if err := c.do(ctx, http.MethodPost, path, body, &dto); err != nil {
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	return dto.toModel(req.ConversationID), nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID, deletedBy string) error {
	q := url.Values{"deleted_by": {deletedBy}}
	path := "/api/messages/" + url.PathEscape(messageID) + "?" + q.Encode()
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (c *Client) UpdateConversationStatus(ctx context.Context, conversationID, role, action string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/status"
	body := map[string]string{"role": role, "action": action}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	return nil
}

func (c *Client) UpdateExchangeStatus(ctx context.Context, messageID string, action exchange.Action, actorID string) error {
	path := "/api/messages/" + url.PathEscape(messageID) + "/exchange"
	body := map[string]string{"action": string(action), "actor_id": actorID}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("update exchange status: %w", err)
	}
	return nil
}

func (c *Client) MarkAllRead(ctx context.Context, viewerID, role string) error {
	body := map[string]string{"viewer_id": viewerID, "role": role}
	if err := c.do(ctx, http.MethodPost, "/api/messages/read-all", body, nil); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
