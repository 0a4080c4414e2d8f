package ports

import (
	"context"
	"time"

	"fx-liquidity-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestSigner signs outbound settlement instructions so the receiving
// endpoint can authenticate them.
type RequestSigner interface {
	Sign(secret string, msg SignedMessage) string
	Verify(secret string, msg SignedMessage, signature string) bool
}

// SignedMessage is the part of an HTTP request covered by a signature.
type SignedMessage struct {
	Method    string
	Path      string
	Timestamp int64
	Nonce     string
	Body      []byte
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// RoleOperator is the only role allowed on back-office routes.
const RoleOperator = "operator"

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached value or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// LockStore provides short-lived named locks shared by all engine instances.
type LockStore interface {
	// TryLock acquires name for ttl. Returns false if another holder has it.
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error
}

// SettlementProvider moves destination funds externally. A returned error
// means the attempt did not resolve; it never implies success.
type SettlementProvider interface {
	Name() string
	Process(ctx context.Context, req domain.SettlementRequest) (*domain.SettlementResult, error)
}

// --- Service Ports (Business Logic) ---

// QuoteService resolves rates and margins into destination amounts.
type QuoteService interface {
	Resolve(ctx context.Context, src, dst domain.CurrencyCode, amount decimal.Decimal, at time.Time) (*domain.Quote, error)
}

// TransferService drives transfers through their lifecycle.
type TransferService interface {
	Initiate(ctx context.Context, req TransferRequest) (*domain.Transfer, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	Complete(ctx context.Context, id uuid.UUID, result domain.SettlementResult) (*domain.Transfer, error)
}

// TransferRequest holds validated input for a transfer.
type TransferRequest struct {
	Narration           string
	Source              string
	SourceCurrency      string
	SourceAmount        decimal.Decimal
	Destination         string
	DestinationCurrency string
	Reference           string
	IdempotenceKey      string
}

// RateService publishes and reads exchange rates.
type RateService interface {
	UpdateRate(ctx context.Context, req RateUpdateRequest) (*domain.Rate, error)
	Latest(ctx context.Context, pair string) (*domain.Rate, error)
}

// RateUpdateRequest holds input for a rate observation.
type RateUpdateRequest struct {
	Pair      string
	Rate      decimal.Decimal
	Timestamp time.Time
}

// RebalanceService redistributes liquidity from demand and volatility.
type RebalanceService interface {
	Rebalance(ctx context.Context, now time.Time) (*domain.RebalanceReport, error)
}

// RebalanceRunner runs one lock-guarded rebalance pass.
type RebalanceRunner interface {
	RunOnce(ctx context.Context) (*domain.RebalanceReport, error)
}

// ReportingService exposes read models for operators.
type ReportingService interface {
	Liquidity(ctx context.Context) ([]domain.Currency, error)
	DailyRevenue(ctx context.Context, day string) ([]domain.DailyRevenue, error)
}

// AuthService issues operator tokens.
type AuthService interface {
	IssueToken(ctx context.Context, username, password string) (string, time.Time, error)
}

// AuditService records operator actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
