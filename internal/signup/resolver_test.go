package signup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	userentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/repo"
)

// stubFinder serves fixed pending rows per key, newest first.
type stubFinder struct {
	byEmail  map[string][]userentity.User
	byMobile map[string][]userentity.User
}

func (s stubFinder) FindSettledByContact(context.Context, userentity.Contact) (*userentity.User, error) {
	return nil, userrepo.ErrNotFound
}

func (s stubFinder) FindPendingByEmail(_ context.Context, email string) ([]userentity.User, error) {
	return s.byEmail[email], nil
}

func (s stubFinder) FindPendingByMobile(_ context.Context, mobile string) ([]userentity.User, error) {
	return s.byMobile[mobile], nil
}

func TestFindPendingPrefersEmailAndReportsMatches(t *testing.T) {
	now := time.Now().UTC()
	finder := stubFinder{
		byEmail: map[string][]userentity.User{
			"dup@example.com": {{ID: "newer", CreatedAt: now}, {ID: "older", CreatedAt: now.Add(-time.Hour)}},
		},
		byMobile: map[string][]userentity.User{
			"+639170000009": {{ID: "by-mobile"}},
		},
	}
	r := NewResolver(finder, nil, zap.NewNop().Sugar())
	ctx := context.Background()

	u, n, err := r.FindPending(ctx, userentity.Contact{Email: strp("dup@example.com"), MobileNumber: strp("+639170000009")})
	require.NoError(t, err)
	assert.Equal(t, "newer", u.ID)
	assert.Equal(t, 2, n)

	u, n, err = r.FindPending(ctx, userentity.Contact{Email: strp("none@example.com"), MobileNumber: strp("+639170000009")})
	require.NoError(t, err)
	assert.Equal(t, "by-mobile", u.ID)
	assert.Equal(t, 1, n)

	u, n, err = r.FindPending(ctx, userentity.Contact{Email: strp("none@example.com")})
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.Zero(t, n)
}

func TestFindInvitationFallsBackToContact(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	used := e.invite(t, "fallback@example.com", "")
	_, err := e.ledger.Consume(ctx, used)
	require.NoError(t, err)
	open := e.invite(t, "fallback@example.com", "")
	want, err := e.ledger.Validate(ctx, open)
	require.NoError(t, err)

	contact := userentity.Contact{Email: strp("fallback@example.com")}
	cases := map[string]string{
		"used token":    used,
		"unknown token": "no-such-token",
		"no token":      "",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			g, err := e.svc.resolver.FindInvitation(ctx, token, contact)
			require.NoError(t, err)
			require.NotNil(t, g)
			assert.Equal(t, want.ID, g.ID)
		})
	}

	g, err := e.svc.resolver.FindInvitation(ctx, "", userentity.Contact{Email: strp("stranger@example.com")})
	require.NoError(t, err)
	assert.Nil(t, g)
}
