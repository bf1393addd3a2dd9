// Package mailer is the mail provider client: webhook subscriptions, message
// fetch, and folder routing over a Microsoft-Graph-style REST API using
// OAuth2 client-credentials auth.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	defaultAuthURL = "https://login.microsoftonline.com"

	// subscriptionTTL is how far out new webhook subscriptions expire.
	subscriptionTTL = 48 * time.Hour

	// tokenSlack renews the access token this long before actual expiry.
	tokenSlack = 2 * time.Minute
)

// Config holds the provider credentials and endpoints.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	BaseURL      string // defaults to the public Graph endpoint
	AuthURL      string // defaults to the public login endpoint
	ClientState  string // echoed back in webhook notifications
}

// Client is a mail provider API client. Safe for concurrent use; the access
// token is cached and renewed under a mutex.
type Client struct {
	cfg  Config
	http *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// Subscription is a created webhook subscription.
type Subscription struct {
	ID         string    `json:"id"`
	Resource   string    `json:"resource"`
	Expiration time.Time `json:"expirationDateTime"`
}

// Message is a fetched mail message. Body content is HTML as delivered.
type Message struct {
	ID      string
	From    string
	Subject string
	Body    string
}

// New creates a client from config, applying endpoint defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// accessToken returns a cached token, renewing via the client-credentials
// grant when expired.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp.Add(-tokenSlack)) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.cfg.AuthURL, c.cfg.TenantID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token request: status %d: %s", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	c.token = tok.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

// do issues an authenticated request with an optional JSON body and decodes
// the JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, apiURL string, body, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, apiURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, apiURL, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Subscribe creates a webhook subscription for new messages in the user's
// inbox, expiring subscriptionTTL from now.
func (c *Client) Subscribe(ctx context.Context, notificationURL, userEmail string) (*Subscription, error) {
	payload := map[string]string{
		"changeType":         "created",
		"notificationUrl":    notificationURL,
		"resource":           fmt.Sprintf("users/%s/mailFolders('Inbox')/messages", userEmail),
		"expirationDateTime": time.Now().UTC().Add(subscriptionTTL).Format(time.RFC3339),
		"clientState":        c.cfg.ClientState,
	}

	var sub Subscription
	if err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/subscriptions", payload, &sub); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", userEmail, err)
	}
	return &sub, nil
}

// FetchMessage retrieves a message by its notification resource path.
func (c *Client) FetchMessage(ctx context.Context, resource string) (*Message, error) {
	var raw struct {
		ID   string `json:"id"`
		From struct {
			EmailAddress struct {
				Address string `json:"address"`
			} `json:"emailAddress"`
		} `json:"from"`
		Subject string `json:"subject"`
		Body    struct {
			Content string `json:"content"`
		} `json:"body"`
	}
	if err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/"+resource, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	if raw.ID == "" {
		return nil, fmt.Errorf("fetch message: response missing id")
	}
	return &Message{
		ID:      raw.ID,
		From:    raw.From.EmailAddress.Address,
		Subject: raw.Subject,
		Body:    raw.Body.Content,
	}, nil
}

// EnsureSubfolder returns the id of the named inbox subfolder, creating it
// if absent. Name matching is case-insensitive.
func (c *Client) EnsureSubfolder(ctx context.Context, userEmail, name string) (string, error) {
	var inbox struct {
		ID string `json:"id"`
	}
	inboxURL := fmt.Sprintf("%s/users/%s/mailFolders/Inbox", c.cfg.BaseURL, userEmail)
	if err := c.do(ctx, http.MethodGet, inboxURL, nil, &inbox); err != nil {
		return "", fmt.Errorf("resolve inbox for %s: %w", userEmail, err)
	}

	childURL := fmt.Sprintf("%s/users/%s/mailFolders/%s/childFolders", c.cfg.BaseURL, userEmail, inbox.ID)

	var listing struct {
		Value []struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, childURL, nil, &listing); err != nil {
		return "", fmt.Errorf("list folders for %s: %w", userEmail, err)
	}
	for _, f := range listing.Value {
		if strings.EqualFold(f.DisplayName, name) {
			return f.ID, nil
		}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, childURL, map[string]string{"displayName": name}, &created); err != nil {
		return "", fmt.Errorf("create folder %q for %s: %w", name, userEmail, err)
	}
	return created.ID, nil
}

// MoveMessage moves a message into the destination folder.
func (c *Client) MoveMessage(ctx context.Context, userEmail, messageID, folderID string) error {
	moveURL := fmt.Sprintf("%s/users/%s/messages/%s/move", c.cfg.BaseURL, userEmail, messageID)
	payload := map[string]string{"destinationId": folderID}
	if err := c.do(ctx, http.MethodPost, moveURL, payload, nil); err != nil {
		return fmt.Errorf("move message %s: %w", messageID, err)
	}
	return nil
}
