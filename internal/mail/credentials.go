package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

// CredentialStore keeps each user's Google token.
type CredentialStore interface {
	Save(ctx context.Context, userID uuid.UUID, tok *oauth2.Token) error
	Load(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error)
}

// CredentialRepository handles google_credentials PostgreSQL operations.
// Tokens are sealed at rest.
type CredentialRepository struct {
	pool   *pgxpool.Pool
	cipher *TokenCipher
}

func NewCredentialRepository(pool *pgxpool.Pool, cipher *TokenCipher) *CredentialRepository {
	return &CredentialRepository{pool: pool, cipher: cipher}
}

// Save upserts the token. Google only returns a refresh token on consent,
// so an empty one keeps the stored value.
func (r *CredentialRepository) Save(ctx context.Context, userID uuid.UUID, tok *oauth2.Token) error {
	access, err := r.cipher.Seal(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("sealing access token: %w", err)
	}

	var refresh *string
	if tok.RefreshToken != "" {
		sealed, err := r.cipher.Seal(tok.RefreshToken)
		if err != nil {
			return fmt.Errorf("sealing refresh token: %w", err)
		}
		refresh = &sealed
	}

	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO google_credentials (user_id, access_token, refresh_token, token_type, expiry, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		     access_token  = EXCLUDED.access_token,
		     refresh_token = COALESCE(EXCLUDED.refresh_token, google_credentials.refresh_token),
		     token_type    = EXCLUDED.token_type,
		     expiry        = EXCLUDED.expiry,
		     updated_at    = NOW()`,
		userID, access, refresh, tokenType, expiry)
	if err != nil {
		return fmt.Errorf("saving google credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Load(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	var (
		access, tokenType string
		refresh           *string
		expiry            *time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT access_token, refresh_token, token_type, expiry
		 FROM google_credentials WHERE user_id = $1`, userID,
	).Scan(&access, &refresh, &tokenType, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("loading google credential: %w", err)
	}

	tok := &oauth2.Token{TokenType: tokenType}
	if tok.AccessToken, err = r.cipher.Open(access); err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	if refresh != nil {
		if tok.RefreshToken, err = r.cipher.Open(*refresh); err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
	}
	if expiry != nil {
		tok.Expiry = *expiry
	}
	return tok, nil
}
