package user

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/repo"
)

type stubStore struct {
	settled  *entity.User
	findErr  error
	inserted []*entity.User
	err      error
}

func (s *stubStore) FindSettledByContact(context.Context, entity.Contact) (*entity.User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.settled != nil {
		return s.settled, nil
	}
	return nil, userrepo.ErrNotFound
}

func (s *stubStore) InsertPending(_ context.Context, u *entity.User) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, u)
	return nil
}

func TestReserveNormalizesContact(t *testing.T) {
	store := &stubStore{}
	svc := NewUserService(store, zap.NewNop().Sugar(), "")

	u, err := svc.Reserve(context.Background(), ReserveInput{
		Email:        " Maria@Example.com ",
		MobileNumber: "0917 123 4567",
		FullName:     "Maria Santos",
		HouseholdID:  "h1",
	})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "maria@example.com", *u.Email)
	assert.Equal(t, "+639171234567", *u.MobileNumber)
	assert.Equal(t, entity.RoleAmo, u.Role)
	assert.Equal(t, "h1", *u.HouseholdID)
	assert.NotEmpty(t, u.ID)
}

func TestReserveRejects(t *testing.T) {
	ctx := context.Background()

	svc := NewUserService(&stubStore{}, zap.NewNop().Sugar(), "")
	_, err := svc.Reserve(ctx, ReserveInput{FullName: "No Contact"})
	assert.ErrorIs(t, err, ErrContactRequired)

	svc = NewUserService(&stubStore{settled: &entity.User{ID: "u1"}}, zap.NewNop().Sugar(), "")
	_, err = svc.Reserve(ctx, ReserveInput{Email: "taken@example.com"})
	assert.ErrorIs(t, err, ErrContactTaken)

	boom := errors.New("store down")
	svc = NewUserService(&stubStore{findErr: boom}, zap.NewNop().Sugar(), "")
	_, err = svc.Reserve(ctx, ReserveInput{Email: "x@example.com"})
	assert.ErrorIs(t, err, boom)
}

func TestParseRole(t *testing.T) {
	r, err := entity.ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAmo, r)

	r, err = entity.ParseRole(" Kasambahay ")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleKasambahay, r)

	_, err = entity.ParseRole("admin")
	assert.ErrorIs(t, err, entity.ErrUnknownRole)
}
