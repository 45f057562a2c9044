package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/user"
	emailsvc "github.com/trezcool/rollcall/services/email"
	dummydb "github.com/trezcool/rollcall/storage/database/dummy"
	"github.com/trezcool/rollcall/testutil"
)

func setup(t *testing.T) (user.Service, user.Repository, *emailsvc.ConsoleServiceMock) {
	t.Helper()
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(logger, false)

	repo := dummydb.NewUserRepository(dummydb.Open())
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	return user.NewService(repo, mailSvc, conf), repo, mailSvc
}

func TestService_CheckUniqueness(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	usr := testutil.CreateUser(t, repo, "Scanner", "gate1", "gate1@rollcall.test", "", []string{user.RoleScanner}, true)

	tests := []struct {
		name      string
		uname     string
		email     string
		excl      []user.User
		wantField string
	}{
		{name: "free", uname: "gate2", email: "gate2@rollcall.test"},
		{name: "username taken", uname: "gate1", email: "other@rollcall.test", wantField: "username"},
		{name: "email taken", uname: "gate2", email: "gate1@rollcall.test", wantField: "email"},
		{name: "own values", uname: "gate1", email: "gate1@rollcall.test", excl: []user.User{usr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(ctx, tt.uname, tt.email, tt.excl...)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	usr, err := svc.Create(ctx, user.NewUser{
		Name:     "Gate Keeper",
		Username: "keeper",
		Email:    "keeper@rollcall.test",
		Password: "L0ng&Compl3x",
		Roles:    []string{user.RoleScanner},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.Active())
	assert.NoError(t, usr.CheckPassword("L0ng&Compl3x"))

	found, err := svc.GetByUsernameOrEmail(ctx, "  KEEPER@rollcall.test ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, found.ID)

	inactive := false
	updated, err := svc.Update(ctx, usr.ID, user.UpdateUser{
		Name:     "Gate Keeper 2",
		Username: usr.Username,
		Email:    usr.Email,
		IsActive: &inactive,
		Password: "N3w&Compl3x",
	})
	require.NoError(t, err)
	assert.Equal(t, "Gate Keeper 2", updated.Name)
	assert.False(t, updated.Active())
	assert.Equal(t, []string{user.RoleScanner}, updated.Roles, "roles are kept when not provided")
	assert.NoError(t, updated.CheckPassword("N3w&Compl3x"))

	_, err = svc.Update(ctx, "missing", user.UpdateUser{})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	require.NoError(t, svc.Delete(ctx, usr.ID))
	_, err = svc.GetByID(ctx, usr.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, repo, mailSvc := setup(t)
	usr := testutil.CreateUser(t, repo, "Admin", "admin", "admin@rollcall.test", "0ld&Compl3x", []string{user.RoleAdmin}, true)
	testutil.CreateUser(t, repo, "Gone", "gone", "gone@rollcall.test", "0ld&Compl3x", nil, false)

	assert.Equal(t, user.ErrNotFound, errors.Cause(svc.RequestPasswordReset(ctx, "nobody@rollcall.test")))
	assert.Equal(t, user.ErrNotFound, errors.Cause(svc.RequestPasswordReset(ctx, "gone@rollcall.test")), "inactive users cannot reset")
	assert.Empty(t, mailSvc.SentMessages())

	require.NoError(t, svc.RequestPasswordReset(ctx, "ADMIN@rollcall.test"))
	sent := mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, usr.Email, sent[0].To[0].Address)
	data, ok := sent[0].TemplateData.(map[string]interface{})
	require.True(t, ok)
	uid, token := data["UID"].(string), data["Token"].(string)
	assert.Equal(t, user.EncodeUID(usr), uid)

	t.Run("bad token", func(t *testing.T) {
		err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: "nope", Password: "N3w&Compl3x"})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, user.ErrInvalidToken, vErr.Err)
	})

	t.Run("bad uid", func(t *testing.T) {
		err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: "%%%", Token: token, Password: "N3w&Compl3x"})
		var vErr *core.ValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("ok, once", func(t *testing.T) {
		data := user.ResetUserPassword{UID: uid, Token: token, Password: "N3w&Compl3x"}
		require.NoError(t, svc.ResetPassword(ctx, data))

		usr, err := svc.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.NoError(t, usr.CheckPassword("N3w&Compl3x"))

		// the password hash changed, so did the token
		assert.Error(t, svc.ResetPassword(ctx, data))
	})
}
