package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/soundfield/touchledger/internal/platform/errors"

	"github.com/soundfield/touchledger/internal/ledger/domain"
)

// Client talks to a ledger server over the JSON API. It satisfies the
// sync client's Reader interface, so a tail can run against a remote
// ledger the same way it runs against a local one.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given base URL. A nil httpClient
// falls back to a client with a 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// CreateSession opens a new session and returns its id.
func (c *Client) CreateSession(ctx context.Context, initiator string) (uint64, error) {
	var resp createSessionResponse
	err := c.post(ctx, "/v1/sessions", createSessionRequest{Initiator: initiator}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.SessionID, nil
}

// Touch records a touch against a session.
func (c *Client) Touch(ctx context.Context, sessionID uint64, actor string, x, y int32) (domain.TouchEvent, error) {
	var resp touchEventPayload
	path := fmt.Sprintf("/v1/sessions/%d/touches", sessionID)
	err := c.post(ctx, path, touchRequest{Actor: actor, X: x, Y: y}, &resp)
	if err != nil {
		return domain.TouchEvent{}, err
	}
	return fromTouchEventPayload(resp), nil
}

// EndSession closes a session on behalf of caller.
func (c *Client) EndSession(ctx context.Context, sessionID uint64, caller string) error {
	path := fmt.Sprintf("/v1/sessions/%d/end", sessionID)
	return c.post(ctx, path, endSessionRequest{Caller: caller}, &struct{}{})
}

// GetSession fetches a session snapshot. The bool reports whether the
// session exists.
func (c *Client) GetSession(ctx context.Context, sessionID uint64) (domain.Session, bool, error) {
	var resp getSessionResponse
	path := fmt.Sprintf("/v1/sessions/%d", sessionID)
	if err := c.get(ctx, path, &resp); err != nil {
		return domain.Session{}, false, err
	}
	return fromSessionPayload(resp.Session), resp.Exists, nil
}

// GetEventsInRange fetches touch events in the slot range
// (fromSlot, toSlot].
func (c *Client) GetEventsInRange(ctx context.Context, fromSlot, toSlot uint64) ([]domain.TouchEvent, error) {
	var resp eventsResponse
	path := "/v1/events?from=" + strconv.FormatUint(fromSlot, 10) +
		"&to=" + strconv.FormatUint(toSlot, 10)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	events := make([]domain.TouchEvent, 0, len(resp.Events))
	for _, payload := range resp.Events {
		events = append(events, fromTouchEventPayload(payload))
	}
	return events, nil
}

// HeadSlot fetches the ledger's current slot.
func (c *Client) HeadSlot(ctx context.Context) (uint64, error) {
	var resp headResponse
	if err := c.get(ctx, "/v1/head", &resp); err != nil {
		return 0, err
	}
	return resp.Slot, nil
}

// HasParticipated reports whether actor has touched in the session.
func (c *Client) HasParticipated(ctx context.Context, sessionID uint64, actor string) (bool, error) {
	var resp participationResponse
	path := fmt.Sprintf("/v1/sessions/%d/participants/%s", sessionID, actor)
	if err := c.get(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.Participated, nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, dst)
}

func (c *Client) post(ctx context.Context, path string, body, dst any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dst)
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds a typed domain error from an error response
// body, so callers can match with errors.Is against the ledger's
// sentinels.
func decodeError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	var wire errorResponse
	if err := json.Unmarshal(body, &wire); err != nil || wire.Error.Code == "" {
		return fmt.Errorf("ledger responded %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return apperrors.New(apperrors.Code(wire.Error.Code), wire.Error.Message)
}
