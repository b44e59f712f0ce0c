package msgraph

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StepsArtworks/rollcall/internal/application"
)

// IdentityClient implements application.TokenProvider against an OAuth2
// authority. The primary interactive mechanism is the device-code flow; the
// secondary is an authorization-code flow listening on the configured
// redirect URL.
type IdentityClient struct {
	httpClient   *http.Client
	authorityURL string
	clientID     string
	redirectURL  string
	scopes       []string
	logger       *slog.Logger
}

// NewIdentityClient constructs an IdentityClient for the authority.
func NewIdentityClient(httpClient *http.Client, authorityURL, clientID, redirectURL string, scopes []string, logger *slog.Logger) *IdentityClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityClient{
		httpClient:   httpClient,
		authorityURL: strings.TrimRight(authorityURL, "/"),
		clientID:     clientID,
		redirectURL:  redirectURL,
		scopes:       scopes,
		logger:       logger,
	}
}

// AcquireSilent renews a session from persisted provider state (a refresh
// token) without user interaction. An empty or rejected artifact reports
// application.ErrInteractionRequired.
func (c *IdentityClient) AcquireSilent(ctx context.Context, artifact string) (application.TokenResult, error) {
	if strings.TrimSpace(artifact) == "" {
		return application.TokenResult{}, application.ErrInteractionRequired
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {artifact},
		"scope":         {strings.Join(c.scopes, " ")},
	}
	result, err := c.exchange(ctx, form)
	if err != nil {
		var oauthErr *oauthError
		if errors.As(err, &oauthErr) && oauthErr.Code == "invalid_grant" {
			return application.TokenResult{}, application.ErrInteractionRequired
		}
		return application.TokenResult{}, err
	}
	return result, nil
}

// AcquireInteractive runs the requested interactive mechanism.
func (c *IdentityClient) AcquireInteractive(ctx context.Context, mode application.InteractionMode) (application.TokenResult, error) {
	switch mode {
	case application.InteractionSecondary:
		return c.acquireAuthCode(ctx)
	default:
		return c.acquireDeviceCode(ctx)
	}
}

// ClearSession discards provider-held state. The authority exposes no
// revocation operation for this flow, so dropping the artifact is the whole
// of sign-out on the provider side.
func (c *IdentityClient) ClearSession(ctx context.Context, artifact string) error {
	return nil
}

func (c *IdentityClient) acquireDeviceCode(ctx context.Context) (application.TokenResult, error) {
	form := url.Values{
		"client_id": {c.clientID},
		"scope":     {strings.Join(c.scopes, " ")},
	}
	resp, err := c.httpClient.PostForm(c.authorityURL+"/devicecode", form)
	if err != nil {
		return application.TokenResult{}, fmt.Errorf("request device code: %w", err)
	}
	defer resp.Body.Close()

	var device struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&device); err != nil {
		return application.TokenResult{}, fmt.Errorf("decode device code response: %w", err)
	}
	if device.DeviceCode == "" {
		return application.TokenResult{}, errors.New("authority returned no device code")
	}

	c.logger.Info("complete sign-in in your browser",
		"verification_uri", device.VerificationURI, "user_code", device.UserCode)

	interval := time.Duration(device.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(device.ExpiresIn) * time.Second)

	for {
		select {
		case <-ctx.Done():
			return application.TokenResult{}, ctx.Err()
		case <-time.After(interval):
		}
		if time.Now().After(deadline) {
			return application.TokenResult{}, errors.New("device code expired before sign-in completed")
		}

		result, err := c.exchange(ctx, url.Values{
			"client_id":   {c.clientID},
			"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
			"device_code": {device.DeviceCode},
		})
		if err != nil {
			var oauthErr *oauthError
			if errors.As(err, &oauthErr) && oauthErr.Code == "authorization_pending" {
				continue
			}
			return application.TokenResult{}, err
		}
		return result, nil
	}
}

func (c *IdentityClient) acquireAuthCode(ctx context.Context) (application.TokenResult, error) {
	redirect, err := url.Parse(c.redirectURL)
	if err != nil || redirect.Host == "" {
		return application.TokenResult{}, fmt.Errorf("unusable redirect URL %q", c.redirectURL)
	}

	verifier, challenge, err := pkcePair()
	if err != nil {
		return application.TokenResult{}, err
	}

	authURL := fmt.Sprintf("%s/authorize?%s", c.authorityURL, url.Values{
		"client_id":             {c.clientID},
		"response_type":         {"code"},
		"redirect_uri":          {c.redirectURL},
		"scope":                 {strings.Join(c.scopes, " ")},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}.Encode())

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return application.TokenResult{}, fmt.Errorf("listen on redirect address: %w", err)
	}
	defer listener.Close()

	codeCh := make(chan string, 1)
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Signed in. You can close this window.")
		select {
		case codeCh <- code:
		default:
		}
	})}
	go server.Serve(listener)
	defer server.Close()

	c.logger.Info("open this URL to sign in", "url", authURL)

	var code string
	select {
	case <-ctx.Done():
		return application.TokenResult{}, ctx.Err()
	case code = <-codeCh:
	}

	return c.exchange(ctx, url.Values{
		"client_id":     {c.clientID},
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.redirectURL},
		"code_verifier": {verifier},
	})
}

type oauthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *oauthError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// exchange posts to the token endpoint and maps the response into a
// TokenResult, carrying the refresh token forward as the opaque artifact.
func (c *IdentityClient) exchange(ctx context.Context, form url.Values) (application.TokenResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authorityURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return application.TokenResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return application.TokenResult{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		oauthError
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return application.TokenResult{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.Code != "" {
		return application.TokenResult{}, &oauthError{Code: payload.Code, Description: payload.Description}
	}
	if payload.AccessToken == "" {
		return application.TokenResult{}, errors.New("authority returned no access token")
	}

	return application.TokenResult{
		AccessToken: payload.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
		Account:     accountFromIDToken(payload.IDToken),
		Artifact:    payload.RefreshToken,
	}, nil
}

// accountFromIDToken pulls the display claims out of an id token without
// validating it; validation belongs to the authority, which just issued it
// over the authenticated channel.
func accountFromIDToken(idToken string) application.Account {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return application.Account{Name: "Signed-in User"}
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return application.Account{Name: "Signed-in User"}
	}
	var claims struct {
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return application.Account{Name: "Signed-in User"}
	}
	account := application.Account{Name: claims.Name, Username: claims.PreferredUsername}
	if account.Name == "" {
		account.Name = account.Username
	}
	return account
}

func pkcePair() (verifier, challenge string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}
