package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// RemoteConfig describes the external identity provider admin API
type RemoteConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// RemoteProvider calls an external identity provider admin API. Requests are
// authorized with an OAuth2 client credentials token.
type RemoteProvider struct {
	baseURL string
	client  *http.Client
}

func NewRemoteProvider(ctx context.Context, cfg RemoteConfig) *RemoteProvider {
	base := &http.Client{Timeout: cfg.Timeout}
	ccConfig := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	return &RemoteProvider{
		baseURL: cfg.BaseURL,
		client:  ccConfig.Client(context.WithValue(ctx, oauth2.HTTPClient, base)),
	}
}

type remoteUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

func (u remoteUser) identity() *Identity {
	return &Identity{ID: u.ID, Email: u.Email, Confirmed: u.EmailConfirmedAt != nil}
}

func (p *RemoteProvider) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	var body struct {
		Users []remoteUser `json:"users"`
	}
	endpoint := p.baseURL + "/admin/users?email=" + url.QueryEscape(email)
	status, err := p.do(ctx, http.MethodGet, endpoint, nil, &body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned %d looking up user", status)
	}
	for _, u := range body.Users {
		if u.Email == email {
			return u.identity(), nil
		}
	}
	return nil, nil
}

func (p *RemoteProvider) CreateUser(ctx context.Context, email string) (*Identity, error) {
	payload := map[string]interface{}{
		"email":         email,
		"email_confirm": true,
	}
	var created remoteUser
	status, err := p.do(ctx, http.MethodPost, p.baseURL+"/admin/users", payload, &created)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		return created.identity(), nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return nil, ErrIdentityExists
	default:
		return nil, fmt.Errorf("identity provider returned %d creating user", status)
	}
}

func (p *RemoteProvider) IssueOneTimeCredential(ctx context.Context, identity *Identity) (string, error) {
	payload := map[string]string{
		"type":  "magiclink",
		"email": identity.Email,
	}
	var link struct {
		Token string `json:"hashed_token"`
	}
	status, err := p.do(ctx, http.MethodPost, p.baseURL+"/admin/generate_link", payload, &link)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || link.Token == "" {
		return "", fmt.Errorf("identity provider returned %d issuing credential", status)
	}
	return link.Token, nil
}

// do sends a JSON request and decodes a JSON response into out for 2xx statuses
func (p *RemoteProvider) do(ctx context.Context, method, endpoint string, payload, out interface{}) (int, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode identity provider response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
