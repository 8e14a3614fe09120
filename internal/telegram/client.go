// Package telegram is a minimal Telegram Bot API client: long-poll update
// fetching and message sending with an optional reply keyboard. The rest of
// the system only ever sees (chat id, text) pairs.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Inbound is one user message as the dialog engine consumes it.
type Inbound struct {
	ChatID int64
	Text   string
}

type Client struct {
	token       string
	baseURL     string
	httpClient  *http.Client
	pollTimeout time.Duration

	// Next update offset; getUpdates confirms everything before it.
	offset int64
}

// NewClient creates a client for the given bot token. pollTimeout is the
// long-poll duration of each getUpdates call.
func NewClient(token string, pollTimeout time.Duration) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			// Long poll plus headroom for the round trip.
			Timeout: pollTimeout + 10*time.Second,
		},
		pollTimeout: pollTimeout,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// Receive long-polls for new updates and returns the text messages among
// them. Updates without a text message (stickers, photos) are confirmed and
// dropped.
func (c *Client) Receive(ctx context.Context) ([]Inbound, error) {
	payload := map[string]any{
		"offset":          c.offset,
		"timeout":         int(c.pollTimeout.Seconds()),
		"allowed_updates": []string{"message"},
	}

	var updates []update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	var inbound []Inbound
	for _, u := range updates {
		if u.UpdateID >= c.offset {
			c.offset = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		inbound = append(inbound, Inbound{ChatID: u.Message.Chat.ID, Text: u.Message.Text})
	}
	return inbound, nil
}

// Send delivers text to the chat. A non-nil options grid is rendered as a
// one-time reply keyboard; nil removes any previous keyboard so the user
// gets a plain text field.
func (c *Client) Send(ctx context.Context, chatID int64, text string, options [][]string) error {
	payload := map[string]any{
		"chat_id":      chatID,
		"text":         text,
		"reply_markup": replyMarkup(options),
	}
	if err := c.call(ctx, "sendMessage", payload, nil); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func replyMarkup(options [][]string) any {
	if options == nil {
		return map[string]any{"remove_keyboard": true}
	}
	keyboard := make([][]map[string]string, 0, len(options))
	for _, row := range options {
		buttons := make([]map[string]string, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, map[string]string{"text": label})
		}
		keyboard = append(keyboard, buttons)
	}
	return map[string]any{
		"keyboard":          keyboard,
		"resize_keyboard":   true,
		"one_time_keyboard": true,
	}
}

func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("%s: API error: %s", method, apiResp.Description)
	}
	if result != nil {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
