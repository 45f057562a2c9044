package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
	"github.com/trezcool/rollcall/core/user"
	emailsvc "github.com/trezcool/rollcall/services/email"
	dummydb "github.com/trezcool/rollcall/storage/database/dummy"
	"github.com/trezcool/rollcall/testutil"
)

type fixture struct {
	cli     *commandLine
	usrRepo user.Repository
	evtRepo event.Repository
	regRepo registration.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conf := core.NewTestConfig()
	logger := testutil.NewLogger(conf)
	db := dummydb.Open()

	f := &fixture{
		usrRepo: dummydb.NewUserRepository(db),
		evtRepo: dummydb.NewEventRepository(db),
		regRepo: dummydb.NewRegistrationRepository(db),
	}
	events := event.NewService(f.evtRepo)
	regs := registration.NewService(f.regRepo, events, emailsvc.NewConsoleServiceMock(conf, logger))

	f.cli = &commandLine{
		db:      sqlx.NewDb(nil, "postgres"), // migrations are mocked
		usrRepo: f.usrRepo,
		attendanceSvc: attendance.NewService(
			dummydb.NewAttendanceRepository(db),
			regs,
			events,
			attendance.NewMemoryReplayGuard(),
			conf.Attendance,
			logger,
		),
	}
	return f
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		assert.EqualError(t, err, tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_run(t *testing.T) {
	f := setup(t)

	assert.Equal(t, errHelp, f.cli.run([]string{"admin"}))

	err := f.cli.run([]string{"admin", "lol"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "checkpoint", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	t.Run("memory engine", func(t *testing.T) {
		cli := *f.cli
		cli.db = nil
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	f := setup(t)
	existing := testutil.CreateUser(t, f.usrRepo, "Gate", "gate1", "gate1@rollcall.test", "L0ng&Compl3x", []string{user.RoleScanner}, false)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "--username", "boss", "--role", "king"}, wantErrStr: "unknown role \"king\""},
		{name: "create", args: []string{"adduser", "--username", "Boss", "--email", "boss@rollcall.test", "--role", "owner", "--role", "admin"}},
		{name: "update", args: []string{"adduser", "--email", existing.Email, "--name", "Main Gate"}},
	}
	for _, tt := range tests {
		mockPassword(t, "L0ng&Compl3x")
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	ctx := context.Background()
	boss, err := f.usrRepo.GetUser(ctx, user.GetFilter{Username: "boss"})
	require.NoError(t, err)
	assert.Equal(t, "boss@rollcall.test", boss.Email)
	assert.Equal(t, []string{user.RoleAdminOwner, user.RoleAdmin}, boss.Roles)
	assert.True(t, boss.Active())
	assert.NoError(t, boss.CheckPassword("L0ng&Compl3x"))

	updated, err := f.usrRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.Equal(t, "Main Gate", updated.Name)
	assert.Equal(t, []string{user.RoleScanner}, updated.Roles, "roles are kept when none are given")
	assert.True(t, updated.Active())

	t.Run("empty password", func(t *testing.T) {
		mockPassword(t, "")
		assert.Equal(t, errHelp, f.cli.run([]string{"admin", "adduser", "--username", "nobody"}))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "User", "awe", "awe@rollcall.test", "mdr", nil, true)

	tests := []struct {
		cliTest
		pwd string
	}{
		{cliTest: cliTest{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "username but no password", args: []string{"resetpassword", "--username", "lol"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "user not found", args: []string{"resetpassword", "--username", "lol"}, wantErr: user.ErrNotFound}, pwd: "lol"},
		{cliTest: cliTest{name: "reset with username", args: []string{"resetpassword", "--username", usr.Username}}, pwd: "lol"},
		{cliTest: cliTest{name: "reset with email", args: []string{"resetpassword", "--username", "AWE@rollcall.test"}}, pwd: "lmao"},
	}
	for _, tt := range tests {
		mockPassword(t, tt.pwd)
		t.Run(tt.name, func(t *testing.T) {
			err := f.cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if err != nil {
				return
			}
			refreshed, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.False(t, bytes.Equal(refreshed.PasswordHash, usr.PasswordHash), "failed to update new password")
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}

func Test_commandLine_revoke(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	evt := testutil.CreateEvent(t, f.evtRepo, "Hack Night", time.Now(), 2*time.Hour)
	reg := testutil.CreateRegistration(t, f.regRepo, evt.ID, "Awe Some", "AM1", "amritapuri", "ai")
	start := func() attendance.Session {
		sess, err := f.cli.attendanceSvc.StartSession(ctx, attendance.NewSession{
			Email:      reg.Email,
			TicketCode: reg.TicketCode,
			DeviceID:   "device-aaaaaaaaaaaaaaaa",
		})
		require.NoError(t, err)
		return sess
	}

	tests := []cliTest{
		{name: "no target", args: []string{"revoke"}, wantErr: errHelp},
		{name: "both targets", args: []string{"revoke", "--registration", reg.ID, "--session", "x"}, wantErr: errHelp},
		{name: "unknown session", args: []string{"revoke", "--session", "nope"}, wantErr: attendance.ErrSessionNotFound},
		{name: "unknown registration", args: []string{"revoke", "--registration", "nope"}, wantErr: registration.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	t.Run("session", func(t *testing.T) {
		sess := start()
		require.NoError(t, f.cli.run([]string{"admin", "revoke", "--session", sess.ID}))
		got, err := f.cli.attendanceSvc.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.RevokedAt)
	})

	t.Run("registration", func(t *testing.T) {
		sess := start()
		require.NoError(t, f.cli.run([]string{"admin", "revoke", "--registration", reg.ID}))
		got, err := f.cli.attendanceSvc.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.RevokedAt)

		// the ticket can now be bound to another device
		_, err = f.cli.attendanceSvc.StartSession(ctx, attendance.NewSession{
			Email:      reg.Email,
			TicketCode: reg.TicketCode,
			DeviceID:   "device-bbbbbbbbbbbbbbbb",
		})
		assert.NoError(t, err)
	})
}
