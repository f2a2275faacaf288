package pages

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

const accessTokenBytes = 32

// IssuedToken is a freshly minted access token. The raw value is only known
// at issue time; the store keeps its hash.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

type AccessTokenService struct {
	tokens TokenStore
	clock  clockwork.Clock
}

func NewAccessTokenService(tokens TokenStore, clock clockwork.Clock) *AccessTokenService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AccessTokenService{tokens: tokens, clock: clock}
}

// Issue mints a token valid for the page's configured expiry. It returns nil
// when the page has none and callers should use the permanent URL instead.
func (s *AccessTokenService) Issue(ctx context.Context, p *Page) (*IssuedToken, error) {
	if !p.HasExpiry() {
		return nil, nil
	}

	buf := make([]byte, accessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	expiresAt := s.clock.Now().Add(time.Duration(*p.QRExpiryMinutes) * time.Minute)

	if err := s.tokens.InsertAccessToken(ctx, p.ID, hashToken(token), expiresAt); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return &IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

// Verify returns the page behind token while now is before its expiry.
// Unknown and expired tokens yield the same ErrInvalidAccessToken.
func (s *AccessTokenService) Verify(ctx context.Context, token string) (*PublicPage, time.Time, error) {
	row, page, err := s.live(ctx, token)
	if err != nil {
		return nil, time.Time{}, err
	}
	pub := page.Public()
	return &pub, row.ExpiresAt, nil
}

// Owner returns the owner of the page behind a live token.
func (s *AccessTokenService) Owner(ctx context.Context, token string) (int64, error) {
	_, page, err := s.live(ctx, token)
	if err != nil {
		return 0, err
	}
	return page.UserID, nil
}

func (s *AccessTokenService) live(ctx context.Context, token string) (*AccessToken, *Page, error) {
	if token == "" {
		return nil, nil, ErrInvalidAccessToken
	}
	row, page, err := s.tokens.FindAccessToken(ctx, hashToken(token))
	if err != nil {
		return nil, nil, err
	}
	if row == nil || page == nil || !s.clock.Now().Before(row.ExpiresAt) {
		return nil, nil, ErrInvalidAccessToken
	}
	return row, page, nil
}

// Prune deletes tokens that expired more than retention ago.
func (s *AccessTokenService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return s.tokens.DeleteExpiredAccessTokens(ctx, s.clock.Now().Add(-retention))
}

// hashToken is the stored form of an access token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
