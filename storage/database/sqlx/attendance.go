package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/registration"
)

const (
	sessionColumns = `id, event_id, registration_id, device_id, salt, remember, created_at, expires_at, revoked_at`
	recordColumns  = `id, event_id, registration_id, status, last_action, last_action_at, check_in_time, last_check_in_time,
	check_out_time, entries, presence_seconds, scanned_by, created_at, updated_at`
)

type sessionRow struct {
	ID             string    `db:"id"`
	EventID        string    `db:"event_id"`
	RegistrationID string    `db:"registration_id"`
	DeviceID       string    `db:"device_id"`
	Salt           []byte    `db:"salt"`
	Remember       bool      `db:"remember"`
	CreatedAt      time.Time `db:"created_at"`
	ExpiresAt      time.Time `db:"expires_at"`
	RevokedAt      null.Time `db:"revoked_at"`
}

type recordRow struct {
	ID              string      `db:"id"`
	EventID         string      `db:"event_id"`
	RegistrationID  string      `db:"registration_id"`
	Status          string      `db:"status"`
	LastAction      string      `db:"last_action"`
	LastActionAt    null.Time   `db:"last_action_at"`
	CheckInTime     null.Time   `db:"check_in_time"`
	LastCheckInTime null.Time   `db:"last_check_in_time"`
	CheckOutTime    null.Time   `db:"check_out_time"`
	Entries         int         `db:"entries"`
	PresenceSeconds int64       `db:"presence_seconds"`
	ScannedBy       null.String `db:"scanned_by"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

type attendanceRepository struct {
	repo
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db core.DB) attendance.Repository {
	return &attendanceRepository{repo{db: db}}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func (attendanceRepository) sessionFromRow(row sessionRow) attendance.Session {
	return attendance.Session{
		ID:             row.ID,
		EventID:        row.EventID,
		RegistrationID: row.RegistrationID,
		DeviceID:       row.DeviceID,
		Salt:           row.Salt,
		Remember:       row.Remember,
		CreatedAt:      row.CreatedAt.UTC(),
		ExpiresAt:      row.ExpiresAt.UTC(),
		RevokedAt:      utcPtr(row.RevokedAt),
	}
}

func (attendanceRepository) recordToRow(rec attendance.Record) recordRow {
	return recordRow{
		ID:              rec.ID,
		EventID:         rec.EventID,
		RegistrationID:  rec.RegistrationID,
		Status:          string(rec.Status),
		LastAction:      string(rec.LastAction),
		LastActionAt:    nullTime(rec.LastActionAt),
		CheckInTime:     nullTime(rec.CheckInTime),
		LastCheckInTime: nullTime(rec.LastCheckInTime),
		CheckOutTime:    nullTime(rec.CheckOutTime),
		Entries:         rec.Entries,
		PresenceSeconds: rec.PresenceSeconds,
		ScannedBy:       null.NewString(rec.ScannedBy, rec.ScannedBy != ""),
		CreatedAt:       rec.CreatedAt.UTC(),
		UpdatedAt:       rec.UpdatedAt.UTC(),
	}
}

func (attendanceRepository) recordFromRow(row recordRow) attendance.Record {
	return attendance.Record{
		ID:              row.ID,
		EventID:         row.EventID,
		RegistrationID:  row.RegistrationID,
		Status:          attendance.Status(row.Status),
		LastAction:      attendance.Action(row.LastAction),
		LastActionAt:    utcPtr(row.LastActionAt),
		CheckInTime:     utcPtr(row.CheckInTime),
		LastCheckInTime: utcPtr(row.LastCheckInTime),
		CheckOutTime:    utcPtr(row.CheckOutTime),
		Entries:         row.Entries,
		PresenceSeconds: row.PresenceSeconds,
		ScannedBy:       row.ScannedBy.String,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func (r attendanceRepository) ReplaceSession(ctx context.Context, sess attendance.Session) (attendance.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	row := sessionRow{
		ID:             sess.ID,
		EventID:        sess.EventID,
		RegistrationID: sess.RegistrationID,
		DeviceID:       sess.DeviceID,
		Salt:           sess.Salt,
		Remember:       sess.Remember,
		CreatedAt:      sess.CreatedAt.UTC(),
		ExpiresAt:      sess.ExpiresAt.UTC(),
		RevokedAt:      nullTime(sess.RevokedAt),
	}

	err := r.inTx(ctx, nil, func(exe core.DBExecutor) error {
		// concurrent session starts of a registration queue up behind this lock
		var regID string
		q := exe.Rebind(`SELECT id FROM registration WHERE id = ? FOR UPDATE`)
		if err := exe.GetContext(ctx, &regID, q, row.RegistrationID); err != nil {
			return trapNoRows(err, registration.ErrNotFound, "locking registration")
		}

		active, err := r.GetActiveSession(ctx, row.RegistrationID, row.CreatedAt, exe)
		switch errors.Cause(err) {
		case nil:
			if active.DeviceID != row.DeviceID {
				return attendance.ErrDeviceMismatch
			}
		case attendance.ErrSessionNotFound:
		default:
			return err
		}

		q = exe.Rebind(`UPDATE attendance_session SET revoked_at = ? WHERE registration_id = ? AND revoked_at IS NULL`)
		if _, err := exe.ExecContext(ctx, q, row.CreatedAt, row.RegistrationID); err != nil {
			return errors.Wrap(err, "revoking sessions")
		}
		q = `INSERT INTO attendance_session (` + sessionColumns + `)
			VALUES (:id, :event_id, :registration_id, :device_id, :salt, :remember, :created_at, :expires_at, :revoked_at)`
		_, err = sqlx.NamedExecContext(ctx, exe, q, row)
		return errors.Wrap(err, "inserting session")
	})
	if err != nil {
		return attendance.Session{}, err
	}
	return r.sessionFromRow(row), nil
}

func (r attendanceRepository) GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (attendance.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Session{}, attendance.ErrSessionNotFound
	}

	exe := r.getExec(exec)
	var row sessionRow
	q := exe.Rebind(`SELECT ` + sessionColumns + ` FROM attendance_session WHERE id = ?`)
	if err := exe.GetContext(ctx, &row, q, id); err != nil {
		return attendance.Session{}, trapNoRows(err, attendance.ErrSessionNotFound, "finding session")
	}
	return r.sessionFromRow(row), nil
}

func (r attendanceRepository) GetActiveSession(ctx context.Context, registrationID string, now time.Time, exec ...core.DBExecutor) (attendance.Session, error) {
	exe := r.getExec(exec)
	var row sessionRow
	q := exe.Rebind(`SELECT ` + sessionColumns + ` FROM attendance_session
		WHERE registration_id = ? AND revoked_at IS NULL AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1`)
	if err := exe.GetContext(ctx, &row, q, registrationID, now.UTC()); err != nil {
		return attendance.Session{}, trapNoRows(err, attendance.ErrSessionNotFound, "finding active session")
	}
	return r.sessionFromRow(row), nil
}

func (r attendanceRepository) RevokeSessions(ctx context.Context, filter attendance.SessionFilter, at time.Time, exec ...core.DBExecutor) (int, error) {
	var w where
	w.add("revoked_at IS NULL")
	for col, id := range map[string]string{"id": filter.ID, "registration_id": filter.RegistrationID} {
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			return 0, nil
		}
		w.add(col+" = ?", id)
	}

	exe := r.getExec(exec)
	args := append([]interface{}{at.UTC()}, w.args...)
	res, err := exe.ExecContext(ctx, exe.Rebind(`UPDATE attendance_session SET revoked_at = ?`+w.String()), args...)
	if err != nil {
		return 0, errors.Wrap(err, "revoking sessions")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "revoking sessions")
}

func (r attendanceRepository) GetRecord(ctx context.Context, eventID, registrationID string, exec ...core.DBExecutor) (attendance.Record, error) {
	exe := r.getExec(exec)
	var row recordRow
	q := exe.Rebind(`SELECT ` + recordColumns + ` FROM attendance WHERE event_id = ? AND registration_id = ?`)
	if err := exe.GetContext(ctx, &row, q, eventID, registrationID); err != nil {
		return attendance.Record{}, trapNoRows(err, attendance.ErrRecordNotFound, "finding attendance")
	}
	return r.recordFromRow(row), nil
}

func (r attendanceRepository) UpdateRecord(ctx context.Context, eventID, registrationID string, fn func(attendance.Record) (attendance.Record, error)) (attendance.Record, error) {
	var updated attendance.Record
	err := r.inTx(ctx, nil, func(exe core.DBExecutor) error {
		// the blank record gives concurrent first scans a row to lock
		now := core.NowUTC()
		q := exe.Rebind(`INSERT INTO attendance (id, event_id, registration_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (event_id, registration_id) DO NOTHING`)
		if _, err := exe.ExecContext(ctx, q, uuid.New().String(), eventID, registrationID, attendance.StatusAbsent, now, now); err != nil {
			return errors.Wrap(err, "inserting attendance")
		}

		var row recordRow
		q = exe.Rebind(`SELECT ` + recordColumns + ` FROM attendance WHERE event_id = ? AND registration_id = ? FOR UPDATE`)
		if err := exe.GetContext(ctx, &row, q, eventID, registrationID); err != nil {
			return errors.Wrap(err, "locking attendance")
		}

		rec, err := fn(r.recordFromRow(row))
		if err != nil {
			return err
		}
		rec.ID, rec.EventID, rec.RegistrationID, rec.CreatedAt = row.ID, eventID, registrationID, row.CreatedAt.UTC()

		q = `UPDATE attendance SET
			status = :status, last_action = :last_action, last_action_at = :last_action_at, check_in_time = :check_in_time,
			last_check_in_time = :last_check_in_time, check_out_time = :check_out_time, entries = :entries,
			presence_seconds = :presence_seconds, scanned_by = :scanned_by, updated_at = :updated_at
			WHERE id = :id`
		if _, err = sqlx.NamedExecContext(ctx, exe, q, r.recordToRow(rec)); err != nil {
			return errors.Wrap(err, "updating attendance")
		}
		updated = rec
		return nil
	})
	if err != nil {
		return attendance.Record{}, err
	}
	return updated, nil
}

func (r attendanceRepository) QueryRecords(ctx context.Context, eventID string, exec ...core.DBExecutor) ([]attendance.Record, error) {
	exe := r.getExec(exec)
	var rows []recordRow
	q := exe.Rebind(`SELECT ` + recordColumns + ` FROM attendance WHERE event_id = ? ORDER BY created_at`)
	if err := exe.SelectContext(ctx, &rows, q, eventID); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}

	recs := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, r.recordFromRow(row))
	}
	return recs, nil
}
