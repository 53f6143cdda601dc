// Package firebase backs the identity provider contract with Firebase Auth.
package firebase

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
)

// authClient is the subset of *fbauth.Client the provider calls.
type authClient interface {
	CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

type Provider struct {
	client authClient
	logger *zap.SugaredLogger
}

// New initializes a Firebase app for projectID. credentialsFile is optional;
// without it Application Default Credentials are used.
func New(ctx context.Context, projectID, credentialsFile string, logger *zap.SugaredLogger) (*Provider, error) {
	var opts []option.ClientOption
	if f := strings.TrimSpace(credentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	} else {
		logger.Infow("firebase: using application default credentials")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app init: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth init: %w", err)
	}
	return &Provider{client: client, logger: logger}, nil
}

// CreatePasswordIdentity creates a Firebase user with email/password and the
// optional phone number in E.164 form.
func (p *Provider) CreatePasswordIdentity(ctx context.Context, in entity.NewIdentity) (*entity.Identity, error) {
	params := (&fbauth.UserToCreate{}).Password(in.Password)
	if in.Email != "" {
		params = params.Email(in.Email)
	}
	if in.Phone != "" && strings.HasPrefix(in.Phone, "+") {
		params = params.PhoneNumber(in.Phone)
	}
	if in.Name != "" {
		params = params.DisplayName(in.Name)
	}
	u, err := p.client.CreateUser(ctx, params)
	if err != nil {
		if fbauth.IsEmailAlreadyExists(err) || fbauth.IsPhoneNumberAlreadyExists(err) || fbauth.IsUIDAlreadyExists(err) {
			return nil, entity.ErrIdentityExists
		}
		return nil, fmt.Errorf("firebase create user: %w", err)
	}
	p.logger.Infow("firebase identity created", "identity_id", u.UID)
	return &entity.Identity{ID: u.UID, Email: u.Email, Phone: u.PhoneNumber, Name: u.DisplayName}, nil
}

// VerifyBearer verifies a Firebase ID token.
func (p *Provider) VerifyBearer(ctx context.Context, token string) (*entity.Identity, error) {
	tok, err := p.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidCredential, err)
	}
	uid := strings.TrimSpace(tok.UID)
	if uid == "" {
		return nil, entity.ErrInvalidCredential
	}
	return &entity.Identity{
		ID:    uid,
		Email: claim(tok, "email"),
		Phone: claim(tok, "phone_number"),
		Name:  claim(tok, "name"),
	}, nil
}

func claim(tok *fbauth.Token, key string) string {
	if v, ok := tok.Claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
