package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/mailmind/mailmind/internal/config"
)

// ErrEmailNotVerified is returned for Google accounts without a verified address.
var ErrEmailNotVerified = errors.New("google account email is not verified")

// Identity is the signed-in person as reported by the identity provider.
// Token is the provider credential granting mailbox access.
type Identity struct {
	Email string
	Name  string
	Token *oauth2.Token
}

// IdentityProvider runs the authorization-code flow of an external sign-in.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// GoogleProvider signs users in with their Google account.
type GoogleProvider struct {
	oauth *oauth2.Config
	// userinfoOpts are extra client options for the userinfo API, used to
	// point it at a fake server in tests.
	userinfoOpts []option.ClientOption
}

// NewGoogleOAuthConfig is the OAuth client shared by sign-in and the Gmail
// proxy. gmail.modify covers reading, sending and replying.
func NewGoogleOAuthConfig(cfg config.GoogleConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			"openid",
			oauth2api.UserinfoEmailScope,
			oauth2api.UserinfoProfileScope,
			gmail.GmailModifyScope,
		},
	}
}

func NewGoogleProvider(oauth *oauth2.Config) *GoogleProvider {
	return &GoogleProvider{oauth: oauth}
}

// AuthCodeURL asks for offline access on every consent so the callback
// always receives a refresh token.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging google auth code: %w", err)
	}

	opts := append([]option.ClientOption{
		option.WithHTTPClient(p.oauth.Client(ctx, tok)),
	}, p.userinfoOpts...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating google userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching google userinfo: %w", err)
	}
	if info.Email == "" || (info.VerifiedEmail != nil && !*info.VerifiedEmail) {
		return nil, ErrEmailNotVerified
	}

	return &Identity{Email: info.Email, Name: info.Name, Token: tok}, nil
}
