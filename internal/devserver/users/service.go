// Package users holds the accounts of the development backend: sign-up with
// OTP verification, sign-in, token issuing and rotation, profile changes and
// search.
package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/narrate/internal/common"
	"github.com/dmitrijs2005/narrate/internal/cryptox"
	"github.com/dmitrijs2005/narrate/internal/devserver/auth"
	"github.com/dmitrijs2005/narrate/internal/devserver/config"
	"github.com/dmitrijs2005/narrate/internal/devserver/refreshtokens"
	"github.com/dmitrijs2005/narrate/internal/logging"
)

var ErrAlreadyVerified = errors.New("account already verified")

// DefaultSearchLimit is the page size used when Search is given none.
const DefaultSearchLimit = 10

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SignUpInput is a registration request.
type SignUpInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Username  string
}

// UpdateInput is a partial profile update; nil fields stay unchanged.
type UpdateInput struct {
	Username *string
	Email    *string
	Bio      *string
}

type Service struct {
	repo                         Repository
	refreshTokens                refreshtokens.Repository
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	otpLength                    int
	otpValidityDuration          time.Duration
	now                          func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for token and OTP expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, refreshTokens refreshtokens.Repository, cfg *config.Config, logger logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{
		repo:                         repo,
		refreshTokens:                refreshTokens,
		logger:                       logger.With("service", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		otpLength:                    cfg.OTPLength,
		otpValidityDuration:          cfg.OTPValidityDuration,
		now:                          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SignUp creates an unverified account and issues its verification code.
// There is no mail delivery; the code is written to the log.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*User, error) {
	hash, err := cryptox.HashPassword([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	otp, err := cryptox.GenerateOTP(s.otpLength)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	user, err := s.repo.Create(ctx, &User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		OTP:          otp,
		OTPExpires:   s.now().Add(s.otpValidityDuration),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "verification code issued", "email", user.Email, "otp", otp)
	return user, nil
}

// VerifyOTP checks the code sent for email, marks the account verified and
// signs it in.
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) (*User, *TokenPair, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user.Verified {
		return nil, nil, ErrAlreadyVerified
	}
	if user.OTP == "" || !s.now().Before(user.OTPExpires) ||
		subtle.ConstantTimeCompare([]byte(user.OTP), []byte(otp)) != 1 {
		return nil, nil, common.ErrInvalidOTP
	}

	user.Verified = true
	user.OTP = ""
	user.OTPExpires = time.Time{}
	if user, err = s.repo.Update(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.generateTokenPair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// ResendOTP replaces the pending verification code of email.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	otp, err := cryptox.GenerateOTP(s.otpLength)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	user.OTP = otp
	user.OTPExpires = s.now().Add(s.otpValidityDuration)
	if _, err := s.repo.Update(ctx, user); err != nil {
		return err
	}

	s.logger.Info(ctx, "verification code issued", "email", user.Email, "otp", otp)
	return nil
}

// SignIn checks the credentials and returns a new token pair. Unknown emails
// and wrong passwords are indistinguishable.
func (s *Service) SignIn(ctx context.Context, email, password string) (*User, *TokenPair, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrInvalidPassword
		}
		return nil, nil, common.ErrorInternal
	}
	if !cryptox.CheckPassword(user.PasswordHash, []byte(password)) {
		return nil, nil, common.ErrInvalidPassword
	}
	if !user.Verified {
		return nil, nil, common.ErrNotVerified
	}

	pair, err := s.generateTokenPair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// RefreshToken validates a refresh token, rotates it and returns a fresh
// TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.refreshTokens.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, common.ErrorInternal
	}

	if err := s.refreshTokens.Delete(ctx, refreshToken); err != nil {
		return nil, common.ErrorInternal
	}
	if !s.now().Before(token.Expires) {
		return nil, common.ErrRefreshTokenExpired
	}

	return s.generateTokenPair(ctx, token.UserID)
}

// SignOut revokes refreshToken. An empty or unknown token is not an error.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.refreshTokens.Delete(ctx, refreshToken)
}

// Authenticate resolves an access token to its user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret, s.now())
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}

func (s *Service) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := s.repo.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrorNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Service) UpdateInfo(ctx context.Context, userID string, in UpdateInput) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Username != nil {
		user.Username = *in.Username
	}
	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.Bio != nil {
		bio := *in.Bio
		user.Bio = &bio
	}
	return s.repo.Update(ctx, user)
}

func (s *Service) SetImage(ctx context.Context, userID, image string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Image = &image
	return s.repo.Update(ctx, user)
}

// Search returns one page of users and the cursor of the next page, nil on
// the last one.
func (s *Service) Search(ctx context.Context, query string, limit int, after *Cursor) ([]*User, *Cursor, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	found, err := s.repo.Search(ctx, query, limit+1, after)
	if err != nil {
		return nil, nil, err
	}
	if len(found) <= limit {
		return found, nil, nil
	}

	page := found[:limit]
	last := page[len(page)-1]
	return page, &Cursor{ID: last.ID, CreatedAt: last.CreatedAt}, nil
}

// --- helpers below ---

func (s *Service) generateTokenPair(ctx context.Context, userID string) (*TokenPair, error) {
	now := s.now()

	access, err := auth.GenerateToken(userID, s.jwtSecret, now, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.refreshTokens.Create(ctx, userID, refresh, now.Add(s.refreshTokenValidityDuration)); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
