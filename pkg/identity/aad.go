package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agoraworks/agora/pkg/httpclient"
	"github.com/agoraworks/agora/pkg/store"
)

const graphEndpoint = "https://graph.microsoft.com/v1.0"

// AAD token flow errors.
var (
	// ErrAuthorizationPending means the user has not completed the device
	// code sign-in yet; poll again after the interval.
	ErrAuthorizationPending = errors.New("authorization pending")

	// ErrDeviceFlowExpired means the device code timed out.
	ErrDeviceFlowExpired = errors.New("device code expired")
)

// AADClient drives the Azure AD token flows the portal uses: device code,
// resource-owner password, and authorization code exchange.
type AADClient struct {
	tenantID     string
	clientID     string
	clientSecret string
	redirectURI  string
	http         *httpclient.Client
	loginBase    string
}

// AADOption configures an AADClient.
type AADOption func(*AADClient)

// WithLoginBase overrides the login.microsoftonline.com base URL (tests).
func WithLoginBase(base string) AADOption {
	return func(c *AADClient) { c.loginBase = strings.TrimRight(base, "/") }
}

// WithAADHTTPClient overrides the HTTP client.
func WithAADHTTPClient(hc *httpclient.Client) AADOption {
	return func(c *AADClient) { c.http = hc }
}

func NewAADClient(tenantID, clientID, clientSecret, redirectURI string, opts ...AADOption) *AADClient {
	c := &AADClient{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		http:         httpclient.New(httpclient.WithTimeout(30 * time.Second)),
		loginBase:    "https://login.microsoftonline.com",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeviceFlow is the state returned by BeginDeviceFlow; the portal shows
// VerificationURI and UserCode to the user and polls with DeviceCode.
type DeviceFlow struct {
	DeviceCode      string    `json:"device_code"`
	UserCode        string    `json:"user_code"`
	VerificationURI string    `json:"verification_uri"`
	Message         string    `json:"message"`
	Interval        int       `json:"interval"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Token is an issued AAD token set.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

type tokenResponse struct {
	Token
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	Message         string `json:"message"`
	Interval        int    `json:"interval"`
	ExpiresIn       int    `json:"expires_in"`
}

func (c *AADClient) tokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.loginBase, c.tenantID)
}

func (c *AADClient) deviceCodeURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/devicecode", c.loginBase, c.tenantID)
}

func (c *AADClient) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	return resp.StatusCode, nil
}

// BeginDeviceFlow starts a device code sign-in for Graph user scopes.
func (c *AADClient) BeginDeviceFlow(ctx context.Context) (*DeviceFlow, error) {
	form := url.Values{
		"client_id": {c.clientID},
		"scope":     {"https://graph.microsoft.com/User.Read offline_access"},
	}
	var dc deviceCodeResponse
	status, err := c.postForm(ctx, c.deviceCodeURL(), form, &dc)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || dc.DeviceCode == "" {
		return nil, fmt.Errorf("device code request failed with status %d", status)
	}
	interval := dc.Interval
	if interval <= 0 {
		interval = 5
	}
	return &DeviceFlow{
		DeviceCode:      dc.DeviceCode,
		UserCode:        dc.UserCode,
		VerificationURI: dc.VerificationURI,
		Message:         dc.Message,
		Interval:        interval,
		ExpiresAt:       time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second),
	}, nil
}

// PollDeviceFlow attempts one token poll. Returns ErrAuthorizationPending
// while the user has not finished signing in.
func (c *AADClient) PollDeviceFlow(ctx context.Context, flow *DeviceFlow) (*Token, error) {
	if time.Now().After(flow.ExpiresAt) {
		return nil, ErrDeviceFlowExpired
	}
	form := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"client_id":   {c.clientID},
		"device_code": {flow.DeviceCode},
	}
	var tr tokenResponse
	if _, err := c.postForm(ctx, c.tokenURL(), form, &tr); err != nil {
		return nil, err
	}
	switch tr.Error {
	case "":
		return &tr.Token, nil
	case "authorization_pending", "slow_down":
		return nil, ErrAuthorizationPending
	case "expired_token":
		return nil, ErrDeviceFlowExpired
	default:
		return nil, fmt.Errorf("device flow failed: %s: %s", tr.Error, tr.ErrorDescription)
	}
}

// AuthenticatePassword runs the resource-owner password grant. ROPC only
// works for tenant accounts without MFA; the portal falls back to the
// device flow when this fails.
func (c *AADClient) AuthenticatePassword(ctx context.Context, username, password string) (*Token, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {c.clientID},
		"scope":      {"https://graph.microsoft.com/User.Read"},
		"username":   {username},
		"password":   {password},
	}
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
	var tr tokenResponse
	if _, err := c.postForm(ctx, c.tokenURL(), form, &tr); err != nil {
		return nil, err
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, tr.Error)
	}
	return &tr.Token, nil
}

// ExchangeAuthCode redeems an authorization code from the web redirect.
func (c *AADClient) ExchangeAuthCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {c.clientID},
		"code":         {code},
		"redirect_uri": {c.redirectURI},
		"scope":        {"https://graph.microsoft.com/User.Read offline_access"},
	}
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
	var tr tokenResponse
	if _, err := c.postForm(ctx, c.tokenURL(), form, &tr); err != nil {
		return nil, err
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("auth code exchange failed: %s: %s", tr.Error, tr.ErrorDescription)
	}
	return &tr.Token, nil
}

// GraphProfile is the subset of the Graph /me response the portal uses.
type GraphProfile struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	ID                string `json:"id"`
}

// FetchProfile enriches a signed-in Azure user from Microsoft Graph.
func (c *AADClient) FetchProfile(ctx context.Context, accessToken string) (*GraphProfile, error) {
	endpoint := graphEndpoint + "/me"
	if c.loginBase != "https://login.microsoftonline.com" {
		// Test servers host both surfaces.
		endpoint = c.loginBase + "/v1.0/me"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling graph /me: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph /me returned status %d", resp.StatusCode)
	}

	var p GraphProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding graph profile: %w", err)
	}
	return &p, nil
}

// ResolveAzureUser maps a Graph profile onto a portal user. A pre-existing
// record for the principal wins; otherwise a standard user with role
// defaults is created on first sign-in.
func (m *Manager) ResolveAzureUser(ctx context.Context, profile *GraphProfile) (*User, error) {
	username := profile.UserPrincipalName
	if username == "" {
		username = profile.Mail
	}
	if username == "" {
		return nil, fmt.Errorf("graph profile has no principal name")
	}

	u, err := m.Get(ctx, username)
	if err == nil {
		return u, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	u = &User{
		Username:    username,
		Role:        RoleStandard,
		Permissions: DefaultPermissions(RoleStandard),
		Email:       profile.Mail,
		DisplayName: profile.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data, err := encodeUser(u)
	if err != nil {
		return nil, err
	}
	if _, err := m.users.Put(ctx, userKey(username), data, nil); err != nil {
		return nil, err
	}
	return u, nil
}
