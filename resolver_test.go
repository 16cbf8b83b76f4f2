package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pestline/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProfileResolverResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes the lookup key", func(t *testing.T) {
		finder := &MockProfileFinder{}
		finder.On("FindProfileByEmail", mock.Anything, "tech@example.com").
			Return(profile("tech@example.com", auth.RoleAdmin, true), nil).Once()

		got, err := auth.NewProfileResolver(finder).WithLogger(quietLogger{}).Resolve(ctx, "  Tech@Example.COM ")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, []string{auth.RoleAdmin}, got.Roles())
		finder.AssertExpectations(t)
	})

	t.Run("blank role falls back to the default", func(t *testing.T) {
		finder := &MockProfileFinder{}
		finder.On("FindProfileByEmail", mock.Anything, "tech@example.com").
			Return(profile("tech@example.com", "", false), nil)

		got, err := auth.NewProfileResolver(finder).WithLogger(quietLogger{}).Resolve(ctx, "tech@example.com")
		require.NoError(t, err)
		assert.Equal(t, auth.DefaultRoles(), got.Roles())
	})

	t.Run("missing profile", func(t *testing.T) {
		finder := &MockProfileFinder{}
		finder.On("FindProfileByEmail", mock.Anything, "ghost@example.com").
			Return(nil, auth.NewError(auth.KindNotFound, "find profile", auth.ErrProfileNotFound))

		got, err := auth.NewProfileResolver(finder).WithLogger(quietLogger{}).Resolve(ctx, "ghost@example.com")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("lookup failure", func(t *testing.T) {
		boom := errors.New("database is locked")
		finder := &MockProfileFinder{}
		finder.On("FindProfileByEmail", mock.Anything, "tech@example.com").Return(nil, boom)

		got, err := auth.NewProfileResolver(finder).WithLogger(quietLogger{}).Resolve(ctx, "tech@example.com")
		assert.Nil(t, got)
		assert.True(t, auth.IsKind(err, auth.KindTransport))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("malformed email", func(t *testing.T) {
		finder := &MockProfileFinder{}

		_, err := auth.NewProfileResolver(finder).WithLogger(quietLogger{}).Resolve(ctx, "nope")
		require.Error(t, err)
		assert.True(t, auth.IsKind(err, auth.KindCorrupted))
		finder.AssertNotCalled(t, "FindProfileByEmail", mock.Anything, mock.Anything)
	})
}

func TestRolesHelpers(t *testing.T) {
	assert.Equal(t, []string{auth.RoleUser}, auth.RolesFromProfileRole("  "))
	assert.Equal(t, []string{auth.RoleAdmin}, auth.RolesFromProfileRole(" admin "))
	assert.Equal(t, "", auth.PrimaryRole(nil))
	assert.Equal(t, auth.RoleUser, auth.PrimaryRole([]string{auth.RoleUser, auth.RoleAdmin}))

	var nilUser *auth.CurrentUser
	assert.False(t, nilUser.IsAdmin())
	assert.Nil(t, nilUser.Clone())

	u := &auth.CurrentUser{Roles: []string{auth.RoleAdmin}}
	c := u.Clone()
	c.Roles[0] = auth.RoleUser
	assert.True(t, u.IsAdmin())
}
