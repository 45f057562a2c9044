package attendance

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
)

const saltLen = 32

var (
	nowFunc  = time.Now // mockable
	randRead = rand.Read
)

type (
	Repository interface {
		// ReplaceSession revokes the active sessions of the Session's registration and saves the new one, atomically.
		// It returns ErrDeviceMismatch, saving nothing, while a session bound to another device is active.
		ReplaceSession(ctx context.Context, sess Session) (Session, error)
		GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (Session, error)
		// GetActiveSession returns the Session of a registration active at `now`, or ErrSessionNotFound.
		GetActiveSession(ctx context.Context, registrationID string, now time.Time, exec ...core.DBExecutor) (Session, error)
		RevokeSessions(ctx context.Context, filter SessionFilter, at time.Time, exec ...core.DBExecutor) (int, error)

		GetRecord(ctx context.Context, eventID, registrationID string, exec ...core.DBExecutor) (Record, error)
		// UpdateRecord locks the Record of a registration (a NewRecord if there is none yet),
		// and saves what `fn` returns from it. Errors returned by `fn` abort the update.
		UpdateRecord(ctx context.Context, eventID, registrationID string, fn func(Record) (Record, error)) (Record, error)
		QueryRecords(ctx context.Context, eventID string, exec ...core.DBExecutor) ([]Record, error)
	}

	Service interface {
		StartSession(ctx context.Context, ns NewSession) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		CurrentCode(ctx context.Context, sessionID string) (Code, error)
		Status(ctx context.Context, sessionID string) (Record, error)
		Scan(ctx context.Context, req ScanRequest, scannerID string) (ScanResult, error)
		Override(ctx context.Context, eventID, registrationID string, ro RecordOverride, adminID string) (Record, error)
		RevokeSession(ctx context.Context, id string) error
		ResetDevice(ctx context.Context, registrationID string) (int, error)

		Attendees(ctx context.Context, eventID string, filter *AttendeeFilter) ([]Attendee, error)
		Stats(ctx context.Context, eventID string) (Stats, error)
		ExportCSV(ctx context.Context, eventID string, w io.Writer) error
	}

	service struct {
		repo          Repository
		registrations registration.Service
		events        event.Service
		guard         ReplayGuard
		conf          core.AttendanceConfig
		logger        core.Logger
	}
)

// ScanResult is what a scanner station displays after a scan.
type ScanResult struct {
	Action       Action                    `json:"action"`
	Record       Record                    `json:"record"`
	Registration registration.Registration `json:"registration"`
}

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	registrations registration.Service,
	events event.Service,
	guard ReplayGuard,
	conf core.AttendanceConfig,
	logger core.Logger,
) Service {
	return &service{
		repo:          repo,
		registrations: registrations,
		events:        events,
		guard:         guard,
		conf:          conf,
		logger:        logger,
	}
}

// StartSession binds an attendee device to its confirmed registration.
// A device already bound keeps its registration but gets a fresh Session; any other device is refused.
func (svc *service) StartSession(ctx context.Context, ns NewSession) (Session, error) {
	sess, err := svc.startSession(ctx, ns)
	sessionsTotal.WithLabelValues(outcome(err)).Inc()
	return sess, err
}

func (svc *service) startSession(ctx context.Context, ns NewSession) (Session, error) {
	reg, err := svc.registrations.GetByTicket(ctx, ns.TicketCode)
	if err != nil {
		if errors.Cause(err) == registration.ErrNotFound {
			return Session{}, ErrInvalidTicket
		}
		return Session{}, errors.Wrap(err, "getting registration")
	}
	if reg.Email != ns.Email {
		return Session{}, ErrInvalidTicket
	}
	if !reg.Confirmed() {
		return Session{}, ErrRegistrationCancelled
	}

	evt, err := svc.events.GetByID(ctx, reg.EventID)
	if err != nil {
		return Session{}, errors.Wrap(err, "getting event")
	}
	now := nowFunc().UTC()
	if evt.Over(now, svc.conf.CheckOutGrace) {
		return Session{}, ErrEventClosed
	}

	salt := make([]byte, saltLen)
	if _, err := randRead(salt); err != nil {
		return Session{}, errors.Wrap(err, "generating session salt")
	}
	ttl := svc.conf.SessionTTL
	if ns.Remember {
		ttl = svc.conf.RememberedSessionTTL
	}
	expiresAt := now.Add(ttl)
	if end := evt.EndsAt.Add(svc.conf.CheckOutGrace); expiresAt.After(end) {
		expiresAt = end
	}

	sess, err := svc.repo.ReplaceSession(ctx, Session{
		ID:             uuid.New().String(),
		EventID:        evt.ID,
		RegistrationID: reg.ID,
		DeviceID:       ns.DeviceID,
		Salt:           salt,
		Remember:       ns.Remember,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		if errors.Cause(err) == ErrDeviceMismatch {
			return Session{}, ErrDeviceMismatch
		}
		return Session{}, errors.Wrap(err, "saving session")
	}
	return sess, nil
}

func (svc *service) GetSession(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

func (svc *service) activeSession(ctx context.Context, id string, now time.Time) (Session, error) {
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !sess.Active(now) {
		return Session{}, ErrSessionInactive
	}
	return sess, nil
}

// CurrentCode returns the code the attendee device must display now.
func (svc *service) CurrentCode(ctx context.Context, sessionID string) (Code, error) {
	now := nowFunc().UTC()
	sess, err := svc.activeSession(ctx, sessionID, now)
	if err != nil {
		return Code{}, err
	}
	return GenerateCode(sess, now, svc.conf.CodeWindow), nil
}

// Status returns the attendance Record of the Session's registration.
func (svc *service) Status(ctx context.Context, sessionID string) (Record, error) {
	sess, err := svc.activeSession(ctx, sessionID, nowFunc().UTC())
	if err != nil {
		return Record{}, err
	}
	rec, err := svc.repo.GetRecord(ctx, sess.EventID, sess.RegistrationID)
	if errors.Cause(err) == ErrRecordNotFound {
		return NewRecord(sess.EventID, sess.RegistrationID), nil
	}
	return rec, err
}

// Scan validates a scanned code and transitions the attendance of its owner.
func (svc *service) Scan(ctx context.Context, req ScanRequest, scannerID string) (ScanResult, error) {
	timer := prometheus.NewTimer(scanDuration)
	defer timer.ObserveDuration()

	res, err := svc.scan(ctx, req, scannerID)
	scansTotal.WithLabelValues(outcome(err)).Inc()
	return res, err
}

func (svc *service) scan(ctx context.Context, req ScanRequest, scannerID string) (ScanResult, error) {
	p, err := ParsePayload(req.Payload)
	if err != nil {
		return ScanResult{}, err
	}

	now := nowFunc().UTC()
	sess, err := svc.repo.GetSession(ctx, p.SessionID)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return ScanResult{}, ErrCodeInvalid
		}
		return ScanResult{}, errors.Wrap(err, "getting session")
	}
	if !sess.Active(now) {
		return ScanResult{}, ErrSessionInactive
	}
	if req.EventID != "" && req.EventID != sess.EventID {
		return ScanResult{}, ErrWrongEvent
	}
	if err := VerifyCode(sess.Salt, p, now, svc.conf.CodeWindow, svc.conf.CodeSkew); err != nil {
		return ScanResult{}, err
	}
	if err := svc.guard.Claim(ctx, p.ReplayKey(), replayTTL(svc.conf.CodeWindow, svc.conf.CodeSkew)); err != nil {
		if errors.Cause(err) == ErrCodeReplayed {
			return ScanResult{}, ErrCodeReplayed
		}
		return ScanResult{}, errors.Wrap(err, "claiming code")
	}

	evt, err := svc.events.GetByID(ctx, sess.EventID)
	if err != nil {
		return ScanResult{}, errors.Wrap(err, "getting event")
	}
	if !evt.ScanOpen(now, svc.conf.CheckInLead, svc.conf.CheckOutGrace) {
		return ScanResult{}, ErrEventClosed
	}
	if evt.Geofence != nil {
		switch {
		case req.Lat == nil || req.Lng == nil:
			if svc.conf.RequireLocation {
				return ScanResult{}, ErrLocationRequired
			}
		case !evt.Geofence.Contains(*req.Lat, *req.Lng):
			return ScanResult{}, ErrOutsideGeofence
		}
	}

	reg, err := svc.registrations.GetByID(ctx, sess.RegistrationID)
	if err != nil {
		return ScanResult{}, errors.Wrap(err, "getting registration")
	}
	if !reg.Confirmed() {
		return ScanResult{}, ErrRegistrationCancelled
	}

	var action Action
	rec, err := svc.repo.UpdateRecord(ctx, sess.EventID, sess.RegistrationID, func(rec Record) (Record, error) {
		var err error
		rec, action, err = rec.Apply(req.Action, now, svc.conf.ToggleCooldown)
		if err != nil {
			return rec, err
		}
		rec.ScannedBy = scannerID
		rec.UpdatedAt = now
		return rec, nil
	})
	if err != nil {
		return ScanResult{}, err
	}

	svc.logger.Debug("attendance scan", map[string]interface{}{
		"event":        evt.ID,
		"registration": reg.ID,
		"action":       string(action),
		"scanner":      scannerID,
	})
	return ScanResult{Action: action, Record: rec, Registration: reg}, nil
}

// Override forces the attendance status of a registration.
func (svc *service) Override(ctx context.Context, eventID, registrationID string, ro RecordOverride, adminID string) (Record, error) {
	reg, err := svc.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return Record{}, err
	}
	if reg.EventID != eventID {
		return Record{}, registration.ErrNotFound
	}

	now := nowFunc().UTC()
	return svc.repo.UpdateRecord(ctx, eventID, registrationID, func(rec Record) (Record, error) {
		rec, err := rec.Override(ro.Status, now)
		if err != nil {
			return rec, err
		}
		rec.ScannedBy = adminID
		rec.UpdatedAt = now
		return rec, nil
	})
}

func (svc *service) RevokeSession(ctx context.Context, id string) error {
	n, err := svc.repo.RevokeSessions(ctx, SessionFilter{ID: id}, nowFunc().UTC())
	if err != nil {
		return errors.Wrap(err, "revoking session")
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ResetDevice revokes the sessions of a registration, so that another device can be bound to it.
func (svc *service) ResetDevice(ctx context.Context, registrationID string) (int, error) {
	if _, err := svc.registrations.GetByID(ctx, registrationID); err != nil {
		return 0, err
	}
	n, err := svc.repo.RevokeSessions(ctx, SessionFilter{RegistrationID: registrationID}, nowFunc().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "revoking sessions")
	}
	return n, nil
}
