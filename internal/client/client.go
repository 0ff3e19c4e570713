// Package client talks to the chat proxy and keeps the state of one conversation.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anasify/dashboard/backend/internal/model/chat"
)

// ErrIncompleteStream means the server closed the stream before an end event.
var ErrIncompleteStream = errors.New("stream ended before completion")

// StatusError is a non-200 reply from the proxy.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat proxy returned %d: %s", e.Code, e.Message)
}

// ExchangeError is an error event delivered inside the stream.
type ExchangeError struct {
	Message string
}

func (e *ExchangeError) Error() string {
	return e.Message
}

// Streamer sends a conversation and reports every event of the reply.
type Streamer interface {
	Stream(ctx context.Context, messages []chat.Message, onEvent func(chat.Event)) error
}

// Client is an HTTP Streamer for the chat proxy endpoint.
type Client struct {
	baseURL    string
	botID      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBot scopes every exchange to a chatbot.
func WithBot(botID string) Option {
	return func(c *Client) { c.botID = strings.TrimSpace(botID) }
}

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// 不设整体超时，流的时长由服务端截止时间约束。
		httpClient: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 60 * time.Second,
		}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the url exchanges are posted to.
func (c *Client) Endpoint() string {
	if c.botID == "" {
		return c.baseURL + "/api/chat"
	}
	return c.baseURL + "/api/chatbots/" + url.PathEscape(c.botID) + "/chat"
}

// Stream posts messages and invokes onEvent for every frame until end.
// An error event is returned as *ExchangeError.
func (c *Client) Stream(ctx context.Context, messages []chat.Message, onEvent func(chat.Event)) error {
	body, err := json.Marshal(chat.Request{Messages: messages})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readStatusError(resp)
	}

	return readEvents(resp.Body, onEvent)
}

func readStatusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}
	return &StatusError{Code: resp.StatusCode, Message: payload.Error}
}

// readEvents 解析 SSE 帧：连续的 data 行组成一帧，空行结束一帧。
func readEvents(r io.Reader, onEvent func(chat.Event)) error {
	reader := bufio.NewReader(r)
	var data strings.Builder

	dispatch := func() (bool, error) {
		if data.Len() == 0 {
			return false, nil
		}
		var ev chat.Event
		err := json.Unmarshal([]byte(data.String()), &ev)
		data.Reset()
		if err != nil {
			return false, fmt.Errorf("decode event: %w", err)
		}
		if ev.Event == chat.EventError {
			return false, &ExchangeError{Message: ev.Error}
		}
		if onEvent != nil {
			onEvent(ev)
		}
		return ev.Event == chat.EventEnd, nil
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read stream: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			done, dispatchErr := dispatch()
			if dispatchErr != nil {
				return dispatchErr
			}
			if done {
				return nil
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if eof {
			done, dispatchErr := dispatch()
			if dispatchErr != nil {
				return dispatchErr
			}
			if done {
				return nil
			}
			return ErrIncompleteStream
		}
	}
}
