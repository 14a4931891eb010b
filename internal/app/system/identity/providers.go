package identity

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
)

// Provider names; they double as the {provider} route segment and the
// credential's provider field.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderTwitter  = "twitter"
	ProviderApple    = "apple"
)

const (
	googleUserInfoURL   = "https://www.googleapis.com/oauth2/v2/userinfo"
	facebookUserInfoURL = "https://graph.facebook.com/me?fields=id,name,first_name,last_name,email"
	twitterUserInfoURL  = "https://api.twitter.com/2/users/me"
	appleIssuer         = "https://appleid.apple.com"
)

// Provider drives one OAuth2 sign-in flow.
type Provider struct {
	Name        string
	OAuth       *oauth2.Config
	UserInfoURL string
	// PKCE flows park a verifier with the state token.
	PKCE bool
	// FormPost providers call back with a POST (Sign in with Apple).
	FormPost bool

	authOpts     []oauth2.AuthCodeOption
	clientSecret func() (string, error)
	identify     func(ctx context.Context, p *Provider, tok *oauth2.Token, form url.Values) (Identity, error)
}

// AuthCodeURL is the consent-screen redirect for state. verifier is ignored
// unless the provider uses PKCE.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	opts := append([]oauth2.AuthCodeOption(nil), p.authOpts...)
	if p.PKCE {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return p.OAuth.AuthCodeURL(state, opts...)
}

// Exchange trades the callback code for a token.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	cfg := p.OAuth
	if p.clientSecret != nil {
		secret, err := p.clientSecret()
		if err != nil {
			return nil, fmt.Errorf("%s client secret: %w", p.Name, err)
		}
		c := *p.OAuth
		c.ClientSecret = secret
		cfg = &c
	}
	var opts []oauth2.AuthCodeOption
	if p.PKCE {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	return cfg.Exchange(ctx, code, opts...)
}

// Identify reads the subject and profile fields for tok. form is the
// callback form; only Apple sends profile data there.
func (p *Provider) Identify(ctx context.Context, tok *oauth2.Token, form url.Values) (Identity, error) {
	id, err := p.identify(ctx, p, tok, form)
	if err != nil {
		return Identity{}, err
	}
	if id.Subject == "" {
		return Identity{}, fmt.Errorf("%s: no subject in user info", p.Name)
	}
	id.Provider = p.Name
	return id, nil
}

// OAuthClient holds a client id and secret.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

func (c OAuthClient) configured() bool { return c.ClientID != "" && c.ClientSecret != "" }

// AppleClient holds Sign in with Apple settings. The client secret is an
// ES256 JWT minted from the team's private key.
type AppleClient struct {
	ClientID      string // the Services ID
	TeamID        string
	KeyID         string
	PrivateKeyPEM string
}

func (c AppleClient) configured() bool {
	return c.ClientID != "" && c.TeamID != "" && c.KeyID != "" && c.PrivateKeyPEM != ""
}

// ProvidersConfig lists the provider clients. Unconfigured providers are
// left out of the registry.
type ProvidersConfig struct {
	BaseURL  string
	Google   OAuthClient
	Facebook OAuthClient
	Twitter  OAuthClient
	Apple    AppleClient
}

// NewProviders builds the configured providers keyed by name.
func NewProviders(cfg ProvidersConfig) (map[string]*Provider, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	redirect := func(name string) string { return base + "/auth/" + name + "/callback" }
	out := map[string]*Provider{}

	if cfg.Google.configured() {
		out[ProviderGoogle] = &Provider{
			Name: ProviderGoogle,
			OAuth: &oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				RedirectURL:  redirect(ProviderGoogle),
				Scopes:       []string{"openid", "email", "profile"},
				Endpoint:     google.Endpoint,
			},
			UserInfoURL: googleUserInfoURL,
			identify:    identifyGoogle,
		}
	}
	if cfg.Facebook.configured() {
		out[ProviderFacebook] = &Provider{
			Name: ProviderFacebook,
			OAuth: &oauth2.Config{
				ClientID:     cfg.Facebook.ClientID,
				ClientSecret: cfg.Facebook.ClientSecret,
				RedirectURL:  redirect(ProviderFacebook),
				Scopes:       []string{"email", "public_profile"},
				Endpoint:     facebook.Endpoint,
			},
			UserInfoURL: facebookUserInfoURL,
			identify:    identifyFacebook,
		}
	}
	if cfg.Twitter.configured() {
		out[ProviderTwitter] = &Provider{
			Name: ProviderTwitter,
			OAuth: &oauth2.Config{
				ClientID:     cfg.Twitter.ClientID,
				ClientSecret: cfg.Twitter.ClientSecret,
				RedirectURL:  redirect(ProviderTwitter),
				Scopes:       []string{"users.read", "tweet.read"},
				Endpoint: oauth2.Endpoint{
					AuthURL:   "https://twitter.com/i/oauth2/authorize",
					TokenURL:  "https://api.twitter.com/2/oauth2/token",
					AuthStyle: oauth2.AuthStyleInHeader,
				},
			},
			UserInfoURL: twitterUserInfoURL,
			PKCE:        true,
			identify:    identifyTwitter,
		}
	}
	if cfg.Apple.configured() {
		key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.Apple.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("apple private key: %w", err)
		}
		apple := cfg.Apple
		out[ProviderApple] = &Provider{
			Name: ProviderApple,
			OAuth: &oauth2.Config{
				ClientID:    apple.ClientID,
				RedirectURL: redirect(ProviderApple),
				Scopes:      []string{"name", "email"},
				Endpoint: oauth2.Endpoint{
					AuthURL:   appleIssuer + "/auth/authorize",
					TokenURL:  appleIssuer + "/auth/token",
					AuthStyle: oauth2.AuthStyleInParams,
				},
			},
			FormPost: true,
			authOpts: []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("response_mode", "form_post")},
			clientSecret: func() (string, error) {
				return AppleClientSecret(apple, key, time.Now())
			},
			identify: identifyApple,
		}
	}
	return out, nil
}

// AppleClientSecret mints the short-lived ES256 client secret Apple expects
// at its token endpoint.
func AppleClientSecret(c AppleClient, key *ecdsa.PrivateKey, now time.Time) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    c.TeamID,
		Subject:   c.ClientID,
		Audience:  jwt.ClaimStrings{appleIssuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	})
	tok.Header["kid"] = c.KeyID
	return tok.SignedString(key)
}

func fetchJSON(ctx context.Context, tok *oauth2.Token, endpoint string, dst any) error {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch user info: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode user info: %w", err)
	}
	return nil
}

func identifyGoogle(ctx context.Context, p *Provider, tok *oauth2.Token, _ url.Values) (Identity, error) {
	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := fetchJSON(ctx, tok, p.UserInfoURL, &info); err != nil {
		return Identity{}, err
	}
	id := Identity{Subject: info.ID, FirstName: info.GivenName, LastName: info.FamilyName}
	if info.VerifiedEmail {
		id.Email = info.Email
	}
	return id, nil
}

func identifyFacebook(ctx context.Context, p *Provider, tok *oauth2.Token, _ url.Values) (Identity, error) {
	var info struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := fetchJSON(ctx, tok, p.UserInfoURL, &info); err != nil {
		return Identity{}, err
	}
	return Identity{Subject: info.ID, Email: info.Email, FirstName: info.FirstName, LastName: info.LastName}, nil
}

// identifyTwitter gets no email; X does not release it to OAuth2 apps.
func identifyTwitter(ctx context.Context, p *Provider, tok *oauth2.Token, _ url.Values) (Identity, error) {
	var info struct {
		Data struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := fetchJSON(ctx, tok, p.UserInfoURL, &info); err != nil {
		return Identity{}, err
	}
	first, last, _ := strings.Cut(strings.TrimSpace(info.Data.Name), " ")
	if first == "" {
		first = info.Data.Username
	}
	return Identity{Subject: info.Data.ID, FirstName: first, LastName: last}, nil
}

type appleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"` // Apple sends "true" or true
	jwt.RegisteredClaims
}

// identifyApple reads the id_token returned by the token endpoint. The token
// arrived directly from Apple over TLS in exchange for our client secret, so
// its issuer and audience are checked but not its signature.
func identifyApple(_ context.Context, p *Provider, tok *oauth2.Token, form url.Values) (Identity, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return Identity{}, errors.New("apple: token response has no id_token")
	}
	var claims appleClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return Identity{}, fmt.Errorf("apple: parse id_token: %w", err)
	}
	if claims.Issuer != appleIssuer {
		return Identity{}, fmt.Errorf("apple: unexpected issuer %q", claims.Issuer)
	}
	aud, _ := claims.GetAudience()
	if !containsString(aud, p.OAuth.ClientID) {
		return Identity{}, errors.New("apple: id_token audience mismatch")
	}

	id := Identity{Subject: claims.Subject}
	if fmt.Sprint(claims.EmailVerified) == "true" {
		id.Email = claims.Email
	}
	// Apple sends the user's name only on the first authorization.
	if u := form.Get("user"); u != "" {
		var user struct {
			Name struct {
				FirstName string `json:"firstName"`
				LastName  string `json:"lastName"`
			} `json:"name"`
		}
		if json.Unmarshal([]byte(u), &user) == nil {
			id.FirstName, id.LastName = user.Name.FirstName, user.Name.LastName
		}
	}
	return id, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
