package firebase

import (
	"context"
	"errors"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
)

type stubClient struct {
	created *fbauth.UserToCreate
	token   *fbauth.Token
	err     error
}

func (s *stubClient) CreateUser(_ context.Context, u *fbauth.UserToCreate) (*fbauth.UserRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = u
	return &fbauth.UserRecord{UserInfo: &fbauth.UserInfo{UID: "fb-uid-1", Email: "maria@example.com", DisplayName: "Maria"}}, nil
}

func (s *stubClient) VerifyIDToken(context.Context, string) (*fbauth.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestCreatePasswordIdentity(t *testing.T) {
	c := &stubClient{}
	p := &Provider{client: c, logger: zap.NewNop().Sugar()}
	id, err := p.CreatePasswordIdentity(context.Background(), entity.NewIdentity{Email: "maria@example.com", Password: "pw", Name: "Maria"})
	require.NoError(t, err)
	assert.Equal(t, "fb-uid-1", id.ID)
	assert.NotNil(t, c.created)

	c.err = errors.New("quota")
	_, err = p.CreatePasswordIdentity(context.Background(), entity.NewIdentity{Email: "x@example.com", Password: "pw"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, entity.ErrIdentityExists)
}

func TestVerifyBearerMapsClaims(t *testing.T) {
	c := &stubClient{token: &fbauth.Token{UID: " uid-9 ", Claims: map[string]any{
		"email": "a@example.com", "phone_number": "+639171234567", "name": "Ana",
	}}}
	p := &Provider{client: c, logger: zap.NewNop().Sugar()}
	id, err := p.VerifyBearer(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, &entity.Identity{ID: "uid-9", Email: "a@example.com", Phone: "+639171234567", Name: "Ana"}, id)

	c.token = &fbauth.Token{UID: ""}
	_, err = p.VerifyBearer(context.Background(), "tok")
	assert.ErrorIs(t, err, entity.ErrInvalidCredential)

	c.err = errors.New("expired")
	_, err = p.VerifyBearer(context.Background(), "tok")
	assert.ErrorIs(t, err, entity.ErrInvalidCredential)
}
