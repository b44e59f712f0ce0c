// Package msgraph holds the HTTP clients for the external collaborators: the
// spreadsheet/messaging API and the identity authority. Both are consumed as
// opaque services; only the operations the gateway needs are implemented.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StepsArtworks/rollcall/internal/gateway"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// TokenSource yields the bearer token attached to every request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client talks to the spreadsheet-backed API and the team messaging API. It
// implements gateway.Workbook and gateway.Messenger.
type Client struct {
	httpClient *http.Client
	baseURL    string
	workbookID string
	tokens     TokenSource
	logger     *slog.Logger
}

// NewClient constructs a Client for the given workbook drive item.
func NewClient(httpClient *http.Client, baseURL, workbookID string, tokens TokenSource, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		workbookID: workbookID,
		tokens:     tokens,
		logger:     logger,
	}
}

// ListWorksheets returns the names of the workbook's worksheets.
func (c *Client) ListWorksheets(ctx context.Context) ([]string, error) {
	var payload struct {
		Value []struct {
			Name string `json:"name"`
		} `json:"value"`
	}
	path := fmt.Sprintf("/me/drive/items/%s/workbook/worksheets", url.PathEscape(c.workbookID))
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(payload.Value))
	for _, sheet := range payload.Value {
		names = append(names, sheet.Name)
	}
	return names, nil
}

// UsedRange reads the worksheet's used cell range as displayed text.
func (c *Client) UsedRange(ctx context.Context, worksheet string) ([][]string, error) {
	var payload struct {
		Text [][]string `json:"text"`
	}
	path := fmt.Sprintf("/me/drive/items/%s/workbook/worksheets(%s)/usedRange?$select=text",
		url.PathEscape(c.workbookID), quotedName(worksheet))
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Text, nil
}

// WriteRange writes a rectangle of values at the given cell address.
func (c *Client) WriteRange(ctx context.Context, worksheet, address string, values [][]string) error {
	body := struct {
		Values [][]string `json:"values"`
	}{Values: values}
	path := fmt.Sprintf("/me/drive/items/%s/workbook/worksheets(%s)/range(address='%s')",
		url.PathEscape(c.workbookID), quotedName(worksheet), address)
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

// ListTeams returns the teams the signed-in user has joined.
func (c *Client) ListTeams(ctx context.Context) ([]gateway.NamedRef, error) {
	return c.listRefs(ctx, "/me/joinedTeams")
}

// ListChannels returns the channels of a team.
func (c *Client) ListChannels(ctx context.Context, teamID string) ([]gateway.NamedRef, error) {
	return c.listRefs(ctx, fmt.Sprintf("/teams/%s/channels", url.PathEscape(teamID)))
}

// PostMessage posts a plain-text message to a channel.
func (c *Client) PostMessage(ctx context.Context, teamID, channelID, content string) error {
	body := map[string]any{
		"body": map[string]any{"content": content},
	}
	path := fmt.Sprintf("/teams/%s/channels/%s/messages", url.PathEscape(teamID), url.PathEscape(channelID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) listRefs(ctx context.Context, path string) ([]gateway.NamedRef, error) {
	var payload struct {
		Value []struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	refs := make([]gateway.NamedRef, 0, len(payload.Value))
	for _, item := range payload.Value {
		refs = append(refs, gateway.NamedRef{ID: item.ID, Name: item.DisplayName})
	}
	return refs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("msgraph: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("msgraph: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("msgraph: no bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("msgraph: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("msgraph: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("msgraph: decode response: %w", err)
	}
	return nil
}

// quotedName renders a worksheet name segment, escaping embedded quotes the
// way the range API expects.
func quotedName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
