package session

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedback/core/user"
)

type resolverMock map[string]user.User

func (m resolverMock) GetByID(_ context.Context, id string) (user.User, error) {
	if id == "boom" {
		return user.User{}, errors.New("db down")
	}
	usr, ok := m[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func TestSession_lifecycle(t *testing.T) {
	resolver := resolverMock{
		"s1": {ID: "s1", FullName: "Ama", Role: user.RoleStudent, StudentID: "ST-1"},
		"t1": {ID: "t1", FullName: "Kofi", Role: user.RoleTeacher, Position: "HOD"},
		"x1": {ID: "x1", Role: "janitor"},
	}
	ctx := context.Background()

	s := New(resolver)
	assert.Equal(t, Loading, s.State())
	assert.Nil(t, s.Profile())

	require.NoError(t, s.Refresh(ctx, "s1"))
	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, "s1", s.UserID())
	assert.True(t, s.IsStudent())
	assert.False(t, s.IsTeacher())
	assert.Equal(t, "ST-1", s.Profile().(user.StudentProfile).Number())

	require.NoError(t, s.Refresh(ctx, "t1"))
	assert.True(t, s.IsTeacher())
	assert.Equal(t, user.RoleTeacher, s.Role())
	assert.Equal(t, "HOD", s.Profile().(user.TeacherProfile).Title())

	s.SignOut()
	assert.Equal(t, Anonymous, s.State())
	assert.Equal(t, "", s.UserID())
	assert.False(t, s.IsStudent())
	assert.False(t, s.IsTeacher())

	// deleted profile
	require.NoError(t, s.Refresh(ctx, "gone"))
	assert.Equal(t, Anonymous, s.State())

	// no user
	require.NoError(t, s.Refresh(ctx, ""))
	assert.Equal(t, Anonymous, s.State())

	assert.Error(t, s.Refresh(ctx, "boom"))
	assert.Equal(t, Anonymous, s.State())

	err := s.Refresh(ctx, "x1")
	assert.Equal(t, user.ErrInvalidRole, errors.Cause(err))
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, Anonymous, FromContext(context.Background()).State())

	s := New(resolverMock{})
	ctx := WithSession(context.Background(), s)
	assert.Same(t, s, FromContext(ctx))
}
