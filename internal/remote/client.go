package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a thin request/response wrapper around the messenger's HTTP
// API. It knows nothing about the local mirror; the sync engine and loader
// own all persistence.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates an API client for the given base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Code: -resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	// Every response carries a status envelope; decode it first so a
	// non-OK code surfaces as APIError even when out is nil.
	var status statusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if status.Code != codeOK {
		return &APIError{Code: status.Code, Message: status.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func refQuery(ref ChatRef) url.Values {
	q := url.Values{}
	if ref.Broadcast {
		q.Set("dbId", strconv.FormatInt(ref.DBID, 10))
		q.Set("broadcastId", strconv.FormatInt(ref.BroadcastID, 10))
	} else {
		q.Set("groupId", ref.GroupID)
	}
	return q
}

// Chats fetches one page of the chat list for a scope. An empty cursor
// requests the first page.
func (c *Client) Chats(ctx context.Context, scope Scope, cursor string) (*ChatPage, error) {
	q := url.Values{}
	q.Set("scope", string(scope.Kind))
	if scope.Kind == ScopeFolder {
		q.Set("folderId", strconv.FormatInt(scope.FolderID, 10))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page ChatPage
	if err := c.get(ctx, "/api/messaging/chats", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Folders fetches the full folder list in a single response.
func (c *Client) Folders(ctx context.Context) (*FolderList, error) {
	var list FolderList
	if err := c.get(ctx, "/api/messaging/folders", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Messages fetches one page of a chat's history. The remote reports the
// chat-blocked condition through the status envelope; IsBlockedChat on the
// returned error detects it.
func (c *Client) Messages(ctx context.Context, ref ChatRef, cursor string) (*MessagePage, error) {
	q := refQuery(ref)
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page MessagePage
	if err := c.get(ctx, "/api/messaging/messages", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Counters fetches the remote-reported unread counters.
func (c *Client) Counters(ctx context.Context) (*Counters, error) {
	var counters Counters
	if err := c.get(ctx, "/api/counters", nil, &counters); err != nil {
		return nil, err
	}
	return &counters, nil
}

// DeleteMessage removes a message on the remote service.
func (c *Client) DeleteMessage(ctx context.Context, ref ChatRef, messageID int64) error {
	payload := map[string]any{"messageId": messageID}
	for k, v := range refQuery(ref) {
		payload[k] = v[0]
	}
	return c.post(ctx, "/api/messaging/messages/delete", payload, nil)
}

// PinChat toggles the pinned flag on the remote service.
func (c *Client) PinChat(ctx context.Context, ref ChatRef, pinned bool) error {
	payload := map[string]any{"pinned": pinned}
	for k, v := range refQuery(ref) {
		payload[k] = v[0]
	}
	return c.post(ctx, "/api/messaging/chats/pin", payload, nil)
}

// MarkUnread toggles the remote unread flag for a chat.
func (c *Client) MarkUnread(ctx context.Context, ref ChatRef, unread bool) error {
	payload := map[string]any{"unread": unread}
	for k, v := range refQuery(ref) {
		payload[k] = v[0]
	}
	return c.post(ctx, "/api/messaging/chats/unread", payload, nil)
}

// Upload pushes one media file and returns its server-side media id.
// Media ids are required before a media message can be composed.
func (c *Client) Upload(ctx context.Context, filename string, data io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messaging/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp uploadResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.MediaID, nil
}
