package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTables
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) ReplaceSession(_ context.Context, sess attendance.Session) (attendance.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range repo.db.sessions {
		if s.RegistrationID == sess.RegistrationID && s.Active(sess.CreatedAt) && s.DeviceID != sess.DeviceID {
			return attendance.Session{}, attendance.ErrDeviceMismatch
		}
	}
	for _, s := range repo.db.sessions {
		if s.RegistrationID == sess.RegistrationID && s.RevokedAt == nil {
			at := sess.CreatedAt
			s.RevokedAt = &at
		}
	}
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	sess.Salt = append([]byte(nil), sess.Salt...)
	repo.db.sessions[sess.ID] = &sess
	return sess, nil
}

func (repo *attendanceRepository) GetSession(_ context.Context, id string, _ ...core.DBExecutor) (attendance.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sess, ok := repo.db.sessions[id]; ok {
		return *sess, nil
	}
	return attendance.Session{}, attendance.ErrSessionNotFound
}

func (repo *attendanceRepository) GetActiveSession(_ context.Context, registrationID string, now time.Time, _ ...core.DBExecutor) (attendance.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var latest *attendance.Session
	for _, s := range repo.db.sessions {
		if s.RegistrationID != registrationID || !s.Active(now) {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return attendance.Session{}, attendance.ErrSessionNotFound
	}
	return *latest, nil
}

func (repo *attendanceRepository) RevokeSessions(_ context.Context, filter attendance.SessionFilter, at time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, s := range repo.db.sessions {
		if s.RevokedAt != nil {
			continue
		}
		if (filter.ID != "" && s.ID != filter.ID) || (filter.RegistrationID != "" && s.RegistrationID != filter.RegistrationID) {
			continue
		}
		revokedAt := at
		s.RevokedAt = &revokedAt
		cnt++
	}
	return cnt, nil
}

func (repo *attendanceRepository) GetRecord(_ context.Context, eventID, registrationID string, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.records[recordKey{eventID, registrationID}]; ok {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrRecordNotFound
}

func (repo *attendanceRepository) UpdateRecord(_ context.Context, eventID, registrationID string, fn func(attendance.Record) (attendance.Record, error)) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := recordKey{eventID, registrationID}
	rec := attendance.NewRecord(eventID, registrationID)
	if existing, ok := repo.db.records[key]; ok {
		rec = *existing
	}

	updated, err := fn(rec)
	if err != nil {
		return attendance.Record{}, err
	}
	if updated.ID == "" {
		updated.ID = uuid.New().String()
		updated.CreatedAt = core.NowUTC()
	}
	updated.EventID, updated.RegistrationID = eventID, registrationID
	repo.db.records[key] = &updated
	return updated, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, eventID string, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]attendance.Record, 0)
	for key, rec := range repo.db.records {
		if key.eventID == eventID {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs, nil
}
