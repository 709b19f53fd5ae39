package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/geoagro/ndvi-ingester/service"
	"golang.org/x/oauth2"
)

// Default Copernicus Dataspace authentication endpoint
const (
	DefaultTokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	DefaultClientID = "cdse-public"
)

// expiryMargin: a token expiring within this margin is refreshed beforehand
const expiryMargin = 30 * time.Second

// TokenManager retrieves and refreshes access tokens from the Copernicus
// Dataspace identity server (password grant). It implements oauth2.TokenSource.
type TokenManager struct {
	Client   *http.Client
	TokenURL string
	ClientID string

	user  string
	pword string

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenManager creates a TokenManager for the default Copernicus Dataspace endpoint
func NewTokenManager(user, pword string) *TokenManager {
	return &TokenManager{
		Client:   http.DefaultClient,
		TokenURL: DefaultTokenURL,
		ClientID: DefaultClientID,
		user:     user,
		pword:    pword,
	}
}

// Token implements oauth2.TokenSource, refreshing the token when it is about to expire
func (tm *TokenManager) Token() (*oauth2.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.token != nil && tm.token.Expiry.After(time.Now().Add(expiryMargin)) {
		return tm.token, nil
	}
	token, err := tm.authenticate()
	if err != nil {
		return nil, fmt.Errorf("TokenManager.%w", err)
	}
	tm.token = token
	return token, nil
}

// HTTPClient returns an http.Client adding the Authorization header to every request
func (tm *TokenManager) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, tm)},
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
}

func (tm *TokenManager) authenticate() (*oauth2.Token, error) {
	resp, err := tm.Client.PostForm(tm.TokenURL,
		url.Values{
			"client_id":  {tm.ClientID},
			"username":   {tm.user},
			"password":   {tm.pword},
			"grant_type": {"password"}})
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("Authenticate.PostForm: %w", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("Authenticate.ReadAll: %w", err))
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, service.MakeFatal(fmt.Errorf("Authenticate: invalid credentials: %s: %s", resp.Status, string(body)))
	default:
		return nil, service.MakeTemporary(fmt.Errorf("Authenticate: %s: %s", resp.Status, string(body)))
	}

	token := tokenResponse{}
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("Authenticate.Unmarshal: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("Authenticate: token not found in %s", string(body))
	}

	return &oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		Expiry:      time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}, nil
}
