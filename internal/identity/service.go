package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
	idrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/normalize"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/database"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Store is the persistence for local identities.
type Store interface {
	Insert(ctx context.Context, rec *entity.Record) error
	GetByID(ctx context.Context, id string) (*entity.Record, error)
	GetByEmail(ctx context.Context, email string) (*entity.Record, error)
	GetByPhone(ctx context.Context, phone string) (*entity.Record, error)
}

type Config struct {
	Issuer         string
	TokenTTL       time.Duration
	SigningKeyFile string
	// BcryptCost zero means bcrypt.DefaultCost.
	BcryptCost int
}

// Provider is the in-process identity provider: password identities in the
// store and RS256 access tokens.
type Provider struct {
	repo   Store
	hasher PasswordHasher
	key    *rsa.PrivateKey
	kid    string
	issuer string
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func NewProvider(repo Store, cfg Config, logger *zap.SugaredLogger) (*Provider, error) {
	key, err := loadKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, err
	}
	if cfg.SigningKeyFile == "" {
		logger.Warnw("no signing key file configured, using an ephemeral key; tokens will not survive a restart")
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	h := sha256.Sum256(pub)
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Provider{
		repo:   repo,
		hasher: BcryptHasher{Cost: cfg.BcryptCost},
		key:    key,
		kid:    base64.RawURLEncoding.EncodeToString(h[:8]),
		issuer: cfg.Issuer,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func loadKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return rsa.GenerateKey(rand.Reader, 2048)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}

// CreatePasswordIdentity registers a new identity. An email or phone already
// registered yields entity.ErrIdentityExists.
func (p *Provider) CreatePasswordIdentity(ctx context.Context, in entity.NewIdentity) (*entity.Identity, error) {
	if in.Password == "" {
		return nil, entity.ErrBadCredentials
	}
	hash, err := p.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	rec := &entity.Record{
		ID:           utilities.NewUUID(),
		Email:        normalize.EmailPtr(in.Email),
		Phone:        normalize.MobilePtr(in.Phone),
		DisplayName:  strings.TrimSpace(in.Name),
		PasswordHash: &hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.repo.Insert(ctx, rec); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, entity.ErrIdentityExists
		}
		return nil, fmt.Errorf("insert identity: %w", err)
	}
	p.logger.Infow("identity created", "identity_id", rec.ID)
	return rec.Identity(), nil
}

// Authenticate checks a password against the identity registered under
// identifier, an email address or a phone number.
func (p *Provider) Authenticate(ctx context.Context, identifier, password string) (*entity.Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, entity.ErrBadCredentials
	}
	var (
		rec *entity.Record
		err error
	)
	if strings.Contains(identifier, "@") {
		email, _ := normalize.Email(identifier)
		rec, err = p.repo.GetByEmail(ctx, email)
	} else {
		phone, _ := normalize.Mobile(identifier)
		rec, err = p.repo.GetByPhone(ctx, phone)
	}
	if err != nil {
		if errors.Is(err, idrepo.ErrNotFound) {
			// avoid user enumeration
			return nil, entity.ErrBadCredentials
		}
		return nil, err
	}
	if rec.PasswordHash == nil || !p.hasher.Verify(*rec.PasswordHash, password) {
		return nil, entity.ErrBadCredentials
	}
	return rec.Identity(), nil
}

// IssueAccessToken signs an RS256 access token for id.
func (p *Provider) IssueAccessToken(id *entity.Identity) (string, time.Duration, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": p.issuer,
		"sub": id.ID,
		"iat": now.Unix(),
		"exp": now.Add(p.ttl).Unix(),
	}
	if id.Email != "" {
		claims["email"] = id.Email
	}
	if id.Phone != "" {
		claims["phone_number"] = id.Phone
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = p.kid
	signed, err := tok.SignedString(p.key)
	if err != nil {
		return "", 0, err
	}
	return signed, p.ttl, nil
}

// VerifyBearer validates an access token issued by this provider and returns
// the identity it names. Tokens for deleted identities are rejected.
func (p *Provider) VerifyBearer(ctx context.Context, token string) (*entity.Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != p.kid {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return &p.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithIssuer(p.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidCredential, err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return nil, entity.ErrInvalidCredential
	}
	rec, err := p.repo.GetByID(ctx, sub)
	if err != nil {
		if errors.Is(err, idrepo.ErrNotFound) {
			return nil, entity.ErrInvalidCredential
		}
		return nil, err
	}
	return rec.Identity(), nil
}

// JWKS returns a minimal JWKS containing the public key.
func (p *Provider) JWKS() map[string]any {
	pub := p.key.PublicKey
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": p.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		// exponent as minimal big-endian bytes
		"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
	return map[string]any{"keys": []any{jwk}}
}
