package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultDiscoveryURL is Google's OpenID Connect discovery document.
const DefaultDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

// discoveryCacheTTL is how long a fetched discovery document is reused.
// Google's endpoints practically never move; an hour keeps a restart-free
// process from pinning a stale document forever.
const discoveryCacheTTL = time.Hour

// Assertion is the portion of Google's userinfo response we care about.
// The provider returns more claims; we only unmarshal what provisioning needs.
type Assertion struct {
	Subject       string `json:"sub"`            // stable Google account id
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"` // false means we must not trust Email
	Name          string `json:"given_name"`
	Picture       string `json:"picture"`
}

// ProviderMetadata holds the endpoints read from the discovery document.
type ProviderMetadata struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string        // must match the URI registered in the Google console
	DiscoveryURL string        // defaults to DefaultDiscoveryURL
	Timeout      time.Duration // bound on every call to Google; 0 means 10s
}

// GoogleProvider drives the Authorization Code flow against Google.
//
// Google publishes its endpoints in a discovery document, so
// the oauth2.Config is built lazily from the fetched metadata:
//
//  1. AuthURL: discovery → authorization_endpoint + client_id + scopes + state
//  2. Exchange: discovery → token_endpoint (code → access token),
//     then userinfo_endpoint (access token → Assertion)
//
// All HTTP goes through one client with a timeout, and concurrent discovery
// fetches are collapsed into one request with singleflight.
type GoogleProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	discoveryURL string
	httpClient   *http.Client

	group     singleflight.Group
	mu        sync.RWMutex
	meta      *ProviderMetadata
	fetchedAt time.Time
}

// NewGoogleProvider creates a GoogleProvider. No network call happens until
// the first AuthURL or Exchange.
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	discoveryURL := cfg.DiscoveryURL
	if discoveryURL == "" {
		discoveryURL = DefaultDiscoveryURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GoogleProvider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		discoveryURL: discoveryURL,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Discover returns the provider endpoints, fetching the discovery document
// at most once per discoveryCacheTTL no matter how many logins arrive at once.
func (p *GoogleProvider) Discover(ctx context.Context) (ProviderMetadata, error) {
	p.mu.RLock()
	if p.meta != nil && time.Since(p.fetchedAt) < discoveryCacheTTL {
		meta := *p.meta
		p.mu.RUnlock()
		return meta, nil
	}
	p.mu.RUnlock()

	// The shared fetch must outlive whichever caller started it, so it runs
	// detached from ctx and is bounded by httpClient's timeout instead.
	// Each caller still gives up when its own ctx ends.
	fetchCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(p.discoveryURL, func() (any, error) {
		meta, err := p.fetchMetadata(fetchCtx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.meta = &meta
		p.fetchedAt = time.Now()
		p.mu.Unlock()
		return meta, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return ProviderMetadata{}, res.Err
		}
		return res.Val.(ProviderMetadata), nil
	case <-ctx.Done():
		return ProviderMetadata{}, fmt.Errorf("auth: waiting for discovery document: %w", ctx.Err())
	}
}

func (p *GoogleProvider) fetchMetadata(ctx context.Context) (ProviderMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.discoveryURL, nil)
	if err != nil {
		return ProviderMetadata{}, fmt.Errorf("auth: building discovery request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ProviderMetadata{}, fmt.Errorf("auth: fetching discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ProviderMetadata{}, fmt.Errorf("auth: discovery document returned status %d", resp.StatusCode)
	}

	var meta ProviderMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return ProviderMetadata{}, fmt.Errorf("auth: decoding discovery document: %w", err)
	}
	if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" || meta.UserinfoEndpoint == "" {
		return ProviderMetadata{}, errors.New("auth: discovery document is missing endpoints")
	}

	return meta, nil
}

// oauthConfig builds the oauth2.Config for the discovered endpoints.
//
// AuthStyleInHeader sends client_id/client_secret as HTTP Basic credentials
// on the token request (a confidential client), rather than in the form body.
func (p *GoogleProvider) oauthConfig(meta ProviderMetadata) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		RedirectURL:  p.redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   meta.AuthorizationEndpoint,
			TokenURL:  meta.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthURL returns the URL to send the browser to. state is echoed back on
// the callback and must be checked there (CSRF).
func (p *GoogleProvider) AuthURL(ctx context.Context, state string) (string, error) {
	meta, err := p.Discover(ctx)
	if err != nil {
		return "", err
	}
	return p.oauthConfig(meta).AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange completes the flow: it trades the authorization code for an access
// token (server to server, authenticated with the client secret) and uses the
// token to fetch the caller's profile from the userinfo endpoint.
//
// The returned Assertion is unvetted: EmailVerified must be checked by the caller.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Assertion, error) {
	meta, err := p.Discover(ctx)
	if err != nil {
		return nil, err
	}

	// oauth2 picks its HTTP client out of the context; hand it ours so the
	// token request gets the same timeout as everything else.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauthConfig(meta).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.UserinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: userinfo endpoint returned status %d", resp.StatusCode)
	}

	var a Assertion
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("auth: decoding userinfo response: %w", err)
	}
	if a.Subject == "" {
		return nil, errors.New("auth: userinfo response has no subject")
	}

	return &a, nil
}
