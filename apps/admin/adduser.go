package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, roleNames []string) (user.User, error) {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	roles := make([]string, 0, len(roleNames))
	for _, rn := range roleNames {
		role, ok := user.RoleByFlag(core.CleanString(rn, true /* lower */))
		if !ok {
			return user.User{}, fmt.Errorf("unknown role %q", rn)
		}
		roles = append(roles, role.Value)
	}

	usr, err := cli.findUser(ctx, uname, email)
	switch errors.Cause(err) {
	case nil:
	case user.ErrNotFound:
		usr = user.User{CreatedAt: core.NowUTC()}
	default:
		return user.User{}, err
	}

	if uname != "" {
		usr.Username = uname
	}
	if email != "" {
		usr.Email = email
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = usr.Username
	}
	if len(roles) > 0 {
		usr.Roles = roles
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}
	usr.UpdatedAt = core.NowUTC()
	return cli.usrRepo.UpdateOrCreateUser(ctx, usr)
}

func (cli *commandLine) findUser(ctx context.Context, keys ...string) (user.User, error) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: key})
		if errors.Cause(err) != user.ErrNotFound {
			return usr, err
		}
	}
	return user.User{}, user.ErrNotFound
}
