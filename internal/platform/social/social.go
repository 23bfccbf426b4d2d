// Package social resolves a social-login credential to a verified email.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/fx"
	"golang.org/x/oauth2"

	"github.com/fatflowers/aspy/pkg/config"
)

var (
	ErrInvalidCredential = errors.New("invalid social credential")
	ErrNotConfigured     = errors.New("social provider not configured")
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
	ProviderApple  = "apple"
)

const (
	DefaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	DefaultGitHubTokenURL    = "https://github.com/login/oauth/access_token"
	DefaultGitHubAuthURL     = "https://github.com/login/oauth/authorize"
	DefaultGitHubAPIURL      = "https://api.github.com"
	DefaultAppleIssuer       = "https://appleid.apple.com"
	DefaultAppleKeysURL      = "https://appleid.apple.com/auth/keys"
)

// Identity is what a provider vouches for. Email may be empty when the
// provider account has none.
type Identity struct {
	Email string
	Name  string
}

type Options struct {
	GoogleUserInfoURL string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubAuthURL      string
	GitHubTokenURL     string
	GitHubAPIURL       string

	AppleClientID string
	AppleIssuer   string
	AppleKeysURL  string

	HTTPClient *http.Client
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		GitHubClientID:     cfg.Auth.GitHub.ClientID,
		GitHubClientSecret: cfg.Auth.GitHub.ClientSecret,
		AppleClientID:      cfg.Auth.Apple.ClientID,
	}
}

type Verifier struct {
	opts   Options
	github *oauth2.Config
	apple  *oidc.IDTokenVerifier
}

func New(opts Options) *Verifier {
	if opts.GoogleUserInfoURL == "" {
		opts.GoogleUserInfoURL = DefaultGoogleUserInfoURL
	}
	if opts.GitHubAuthURL == "" {
		opts.GitHubAuthURL = DefaultGitHubAuthURL
	}
	if opts.GitHubTokenURL == "" {
		opts.GitHubTokenURL = DefaultGitHubTokenURL
	}
	if opts.GitHubAPIURL == "" {
		opts.GitHubAPIURL = DefaultGitHubAPIURL
	}
	if opts.AppleIssuer == "" {
		opts.AppleIssuer = DefaultAppleIssuer
	}
	if opts.AppleKeysURL == "" {
		opts.AppleKeysURL = DefaultAppleKeysURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	v := &Verifier{opts: opts}
	if opts.GitHubClientID != "" && opts.GitHubClientSecret != "" {
		v.github = &oauth2.Config{
			ClientID:     opts.GitHubClientID,
			ClientSecret: opts.GitHubClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  opts.GitHubAuthURL,
				TokenURL: opts.GitHubTokenURL,
			},
			Scopes: []string{"read:user", "user:email"},
		}
	}

	keyCtx := oidc.ClientContext(context.Background(), opts.HTTPClient)
	keys := oidc.NewRemoteKeySet(keyCtx, opts.AppleKeysURL)
	v.apple = oidc.NewVerifier(opts.AppleIssuer, keys, &oidc.Config{
		ClientID:             opts.AppleClientID,
		SkipClientIDCheck:    opts.AppleClientID == "",
		SupportedSigningAlgs: []string{oidc.RS256},
	})
	return v
}

func (v *Verifier) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, v.opts.HTTPClient)
}

// Google reads the userinfo endpoint with the client-side access token.
func (v *Verifier) Google(ctx context.Context, accessToken string) (*Identity, error) {
	ctx = v.ctx(ctx)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(ctx, client, v.opts.GoogleUserInfoURL, &info); err != nil {
		return nil, fmt.Errorf("%w: google: %w", ErrInvalidCredential, err)
	}
	if info.Name == "" {
		info.Name = "Google User"
	}
	return &Identity{Email: info.Email, Name: info.Name}, nil
}

// GitHub exchanges an authorization code and reads the account. A private
// email is looked up in /user/emails: the primary verified one, else the
// first listed.
func (v *Verifier) GitHub(ctx context.Context, code string) (*Identity, error) {
	if v.github == nil {
		return nil, fmt.Errorf("%w: github", ErrNotConfigured)
	}
	ctx = v.ctx(ctx)
	tok, err := v.github.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: github code exchange: %w", ErrInvalidCredential, err)
	}
	client := v.github.Client(ctx, tok)

	var user struct {
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, v.opts.GitHubAPIURL+"/user", &user); err != nil {
		return nil, fmt.Errorf("%w: github user: %w", ErrInvalidCredential, err)
	}
	id := &Identity{Email: user.Email, Name: user.Name}
	if id.Name == "" {
		id.Name = user.Login
	}
	if id.Email != "" {
		return id, nil
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, v.opts.GitHubAPIURL+"/user/emails", &emails); err != nil {
		return id, nil
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			id.Email = e.Email
			return id, nil
		}
	}
	if len(emails) > 0 {
		id.Email = emails[0].Email
	}
	return id, nil
}

// Apple verifies a Sign in with Apple id_token against Apple's key set. The
// name only arrives from the client, on first sign-in.
func (v *Verifier) Apple(ctx context.Context, idToken, name string) (*Identity, error) {
	tok, err := v.apple.Verify(v.ctx(ctx), idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: apple: %w", ErrInvalidCredential, err)
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: apple claims: %w", ErrInvalidCredential, err)
	}
	if name == "" {
		name = "Apple User"
	}
	return &Identity{Email: claims.Email, Name: name}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newFromConfig(cfg *config.Config) *Verifier {
	return New(OptionsFromConfig(cfg))
}

var Module = fx.Options(
	fx.Provide(newFromConfig),
)
