package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one broadcast publish.
type Request struct {
	Event        string
	Channels     []string
	Payload      string
	ConnectionID string
}

// Result is the outcome of a broadcast. Failures never surface as Go
// errors; the caller inspects IsSuccessful, Message and Errors.
type Result struct {
	IsSuccessful bool
	Message      string
	Errors       map[string][]string
}

// serverError is the relay's JSON error body for 401/500 responses.
type serverError struct {
	Message string `json:"message"`
}

// validationError is the relay's JSON body for 422 responses, carrying
// per-field errors.
type validationError struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// Broadcast posts the event to the relay and maps the response status
// to a Result: 200 success, 401/500 failure with the server's message,
// 422 validation failure with per-field errors, anything else an
// unknown failure. Transport-level errors are reported as a failure
// carrying the error's message.
func (c *Client) Broadcast(ctx context.Context, req Request) Result {
	form := url.Values{}
	form.Set("event", req.Event)
	for _, ch := range req.Channels {
		form.Add("channels", ch)
	}
	form.Set("payload", req.Payload)
	form.Set("connection_id", req.ConnectionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("publish request failed", "event", req.Event, "error", err)
		return Result{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Message: err.Error()}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{IsSuccessful: true}

	case http.StatusUnauthorized, http.StatusInternalServerError:
		var se serverError
		if err := json.Unmarshal(body, &se); err != nil || se.Message == "" {
			se.Message = http.StatusText(resp.StatusCode)
		}
		c.logger.Warn("publish rejected", "event", req.Event, "status", resp.StatusCode, "message", se.Message)
		return Result{Message: se.Message}

	case http.StatusUnprocessableEntity:
		var ve validationError
		if err := json.Unmarshal(body, &ve); err != nil {
			return Result{Message: http.StatusText(resp.StatusCode)}
		}
		return Result{Message: ve.Message, Errors: ve.Errors}

	default:
		c.logger.Warn("publish returned unexpected status", "event", req.Event, "status", resp.StatusCode)
		return Result{Message: fmt.Sprintf("unknown failure: status %d", resp.StatusCode)}
	}
}
