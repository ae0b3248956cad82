// Package sheets appends scan records to a Google Sheet.
//
// Authentication uses the OAuth2 installed-application flow: a loopback
// HTTP server receives the authorization code and the resulting token is
// stored on disk for later runs.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/qrlog/internal/httpc"
	"github.com/teslashibe/qrlog/internal/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Scopes requested during consent. drive.file lets us find spreadsheets
// this app created by name.
var Scopes = []string{
	gsheets.SpreadsheetsScope,
	drive.DriveFileScope,
}

// DefaultTokenPath is where tokens are stored when none is configured.
const DefaultTokenPath = "token.json"

// Config configures the Google Sheets client.
type Config struct {
	// CredentialsFile is the OAuth client-secrets JSON. Takes precedence
	// over ClientID/ClientSecret when the file exists.
	CredentialsFile string

	ClientID     string
	ClientSecret string

	// RedirectURL is used by AuthURL when no redirect is given,
	// e.g. "http://localhost:8181/api/google/callback".
	RedirectURL string

	// TokenPath stores the token (default: token.json).
	TokenPath string

	// Endpoint overrides Google's OAuth endpoints when TokenURL is set.
	Endpoint oauth2.Endpoint
}

// loadRefreshTimeout bounds the refresh of a stored token in NewClient.
const loadRefreshTimeout = 15 * time.Second

// Client handles OAuth2 authentication and owns the Sheets/Drive services.
type Client struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenPath string
	api       spreadsheetAPI

	// pending maps OAuth state to the redirect URL used for that flow.
	pending map[string]string

	mu     sync.RWMutex
	logger *slog.Logger
}

// NewClient creates a client and loads a stored token if one exists.
func NewClient(cfg Config) (*Client, error) {
	oauthConfig, err := oauthConfigFrom(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Endpoint.TokenURL != "" {
		oauthConfig.Endpoint = cfg.Endpoint
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = DefaultTokenPath
	}

	client := &Client{
		config:    oauthConfig,
		tokenPath: cfg.TokenPath,
		pending:   make(map[string]string),
		logger:    log.With("component", "sheets"),
	}

	// Try to load existing token
	if err := client.loadToken(); err == nil {
		client.restore()
	} else if !errors.Is(err, fs.ErrNotExist) {
		client.logger.Warn("failed to load token", "path", cfg.TokenPath, "error", err)
	}

	return client, nil
}

// restore makes a loaded token usable. An expired token with a refresh
// token is refreshed now; if that fails the user has to consent again.
func (c *Client) restore() {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if !token.Valid() && token.RefreshToken != "" {
		ctx, cancel := context.WithTimeout(context.Background(), loadRefreshTimeout)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("stored token could not be refreshed, consent required", "error", err)
		}
		return
	}

	if err := c.initService(); err != nil {
		c.logger.Warn("stored token unusable", "error", err)
		c.setToken(nil)
	}
}

func oauthConfigFrom(cfg Config) (*oauth2.Config, error) {
	var oauthConfig *oauth2.Config

	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		switch {
		case err == nil:
			oauthConfig, err = google.ConfigFromJSON(data, Scopes...)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", cfg.CredentialsFile, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", cfg.CredentialsFile, err)
		}
	}

	if oauthConfig == nil {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, ErrCredentialsMissing
		}
		oauthConfig = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		}
	}

	if cfg.RedirectURL != "" {
		oauthConfig.RedirectURL = cfg.RedirectURL
	}
	return oauthConfig, nil
}

// IsAuthenticated returns true if the client holds a usable token.
// An expired token with a refresh token still counts; it is refreshed on use.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.api != nil && c.token != nil && (c.token.Valid() || c.token.RefreshToken != "")
}

// AuthURL starts a consent flow and returns the URL to open in a browser.
// An empty redirectURL uses the configured one.
func (c *Client) AuthURL(redirectURL string) string {
	if redirectURL == "" {
		redirectURL = c.config.RedirectURL
	}
	state := uuid.NewString()

	c.mu.Lock()
	c.pending[state] = redirectURL
	c.mu.Unlock()

	cfg := *c.config
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code from a consent flow.
func (c *Client) HandleCallback(ctx context.Context, state, code string) error {
	c.mu.Lock()
	redirectURL, ok := c.pending[state]
	delete(c.pending, state)
	c.mu.Unlock()

	if !ok {
		return ErrStateMismatch
	}
	if code == "" {
		return fmt.Errorf("missing authorization code")
	}

	cfg := *c.config
	cfg.RedirectURL = redirectURL

	token, err := cfg.Exchange(withHTTPClient(ctx), code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	c.setToken(token)

	// Save token for future use
	if err := c.saveToken(); err != nil {
		c.logger.Warn("failed to save token", "path", c.tokenPath, "error", err)
	}

	if err := c.initService(); err != nil {
		return fmt.Errorf("failed to initialize sheets service: %w", err)
	}

	c.logger.Info("google sheets authenticated")
	return nil
}

// Refresh makes sure the token is valid, refreshing it if expired.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == nil {
		return ErrNotAuthenticated
	}
	if token.Valid() {
		return nil
	}
	if token.RefreshToken == "" {
		c.invalidateToken()
		return ErrAuthExpired
	}

	fresh, err := c.config.TokenSource(withHTTPClient(ctx), token).Token()
	if err != nil {
		c.invalidateToken()
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	c.setToken(fresh)
	if err := c.saveToken(); err != nil {
		c.logger.Warn("failed to save refreshed token", "error", err)
	}
	return c.initService()
}

// Disconnect clears the authentication and removes the stored token.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = nil
	c.api = nil

	if err := os.Remove(c.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}

	return nil
}

// Status is the connection status reported to front ends.
type Status struct {
	Connected bool   `json:"connected"`
	TokenPath string `json:"token_path"`
}

// GetStatus returns the current connection status.
func (c *Client) GetStatus() Status {
	return Status{
		Connected: c.IsAuthenticated(),
		TokenPath: c.tokenPath,
	}
}

// SpreadsheetURL returns the URL to view/edit a spreadsheet.
func SpreadsheetURL(id string) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", id)
}

// sheetsAPI returns the API bound to the current token.
func (c *Client) sheetsAPI() (spreadsheetAPI, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.api == nil {
		return nil, ErrNotAuthenticated
	}
	return c.api, nil
}

// initService builds the Sheets and Drive services for the current token.
// Refreshed tokens are written back to disk.
func (c *Client) initService() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return fmt.Errorf("no token available")
	}

	ctx := withHTTPClient(context.Background())
	ts := oauth2.ReuseTokenSource(c.token, &savingTokenSource{
		base:   c.config.TokenSource(ctx, c.token),
		client: c,
	})
	httpClient := oauth2.NewClient(ctx, ts)

	sheetsService, err := gsheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("failed to create sheets service: %w", err)
	}
	driveService, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("failed to create drive service: %w", err)
	}

	c.api = &googleAPI{sheets: sheetsService, drive: driveService}
	return nil
}

func (c *Client) setToken(token *oauth2.Token) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// invalidateToken forgets the in-memory token so the next save asks for consent.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = nil
	c.api = nil
	c.mu.Unlock()
}

// loadToken loads the OAuth token from disk.
func (c *Client) loadToken() error {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}

	c.setToken(&token)
	return nil
}

// saveToken saves the OAuth token to disk.
func (c *Client) saveToken() error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == nil {
		return fmt.Errorf("no token to save")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(c.tokenPath), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.tokenPath, data, 0600)
}

// savingTokenSource persists tokens minted by a refresh.
type savingTokenSource struct {
	base   oauth2.TokenSource
	client *Client

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := token.AccessToken != s.last
	s.last = token.AccessToken
	s.mu.Unlock()

	if changed {
		s.client.mu.Lock()
		s.client.token = token
		s.client.mu.Unlock()
		if err := s.client.saveToken(); err != nil {
			s.client.logger.Warn("failed to save refreshed token", "error", err)
		}
	}
	return token, nil
}

// withHTTPClient routes oauth2 traffic through the shared timeout client.
func withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, httpc.Client)
}
