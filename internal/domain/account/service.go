package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxPasswordBytes is the longest input bcrypt hashes.
const maxPasswordBytes = 72

// PasswordHasher is satisfied by *auth.BcryptHasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer is satisfied by *auth.Issuer.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

type Service struct {
	repo   Repository
	hasher PasswordHasher
	tokens TokenIssuer
	log    zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewService(repo Repository, hasher PasswordHasher, tokens TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		log:    logger.With().Str("component", "account").Logger(),
	}
}

// Register creates an account and returns a session token for it.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Account, string, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)

	verr := &ValidationError{}
	if name == "" {
		verr.add("name", "is required")
	}
	if email == "" {
		verr.add("email", "is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		verr.add("email", "is not a valid address")
	}
	if req.Password == "" {
		verr.add("password", "is required")
	} else if len(req.Password) > maxPasswordBytes {
		verr.add("password", fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	if err := verr.orNil(); err != nil {
		return nil, "", err
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, "", ErrDuplicateAccount
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, "", s.fault("lookup account", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, "", s.fault("hash password", err)
	}

	a := &Account{Name: name, Email: email, PasswordHash: hash}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return nil, "", ErrDuplicateAccount
		}
		return nil, "", s.fault("create account", err)
	}

	token, err := s.tokens.Issue(a.ID.String())
	if err != nil {
		return nil, "", s.fault("issue token", err)
	}

	s.log.Info().Str("account_id", a.ID.String()).Msg("account registered")
	return a, token, nil
}

// Login verifies credentials and returns a fresh session token. Unknown email
// and wrong password fail identically.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Account, string, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, "", ErrInvalidCredentials
	}

	a, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.burnCompare(req.Password)
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", s.fault("lookup account", err)
	}

	if err := s.hasher.Compare(a.PasswordHash, req.Password); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(a.ID.String())
	if err != nil {
		return nil, "", s.fault("issue token", err)
	}
	return a, token, nil
}

// Me returns the account a verified token subject refers to.
func (s *Service) Me(ctx context.Context, subject string) (*Account, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrNotFound
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.fault("get account", err)
	}
	return a, nil
}

// burnCompare spends one bcrypt comparison so unknown emails cost the same
// as wrong passwords.
func (s *Service) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("medassist-unknown-account")
		if err != nil {
			s.log.Warn().Err(err).Msg("dummy hash unavailable")
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}

func (s *Service) fault(op string, err error) error {
	s.log.Error().Err(err).Str("op", op).Msg("account operation failed")
	return fmt.Errorf("%w: %s: %v", ErrServerFault, op, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
