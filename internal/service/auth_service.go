package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// AuthServiceImpl implements ports.AuthService for the single configured operator.
type AuthServiceImpl struct {
	operator config.OperatorConfig
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	log      zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(operator config.OperatorConfig, hashSvc ports.HashService, tokenSvc ports.TokenService, log zerolog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		operator: operator,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		log:      log,
	}
}

// IssueToken validates operator credentials and returns a JWT.
func (s *AuthServiceImpl) IssueToken(ctx context.Context, username, password string) (string, time.Time, error) {
	if s.operator.PasswordHash == "" {
		s.log.Warn().Msg("operator login attempted but no password hash is configured")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.operator.Username)) == 1

	// Verify even on a username mismatch so both paths cost the same.
	valid, err := s.hashSvc.Verify(password, s.operator.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !userOK || !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(username, ports.RoleOperator)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.log.Info().Str("subject", username).Time("expires_at", expiry).Msg("operator token issued")
	return token, expiry, nil
}
