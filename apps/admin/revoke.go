package main

import (
	"context"
)

// revoke revokes the attendance session `sessionID`, or every session of `registrationID`.
func (cli *commandLine) revoke(ctx context.Context, registrationID, sessionID string) (int, error) {
	if sessionID != "" {
		if err := cli.attendanceSvc.RevokeSession(ctx, sessionID); err != nil {
			return 0, err
		}
		return 1, nil
	}
	return cli.attendanceSvc.ResetDevice(ctx, registrationID)
}
