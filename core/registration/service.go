package registration

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/event"
)

const maxTicketAttempts = 3

var (
	// errors
	ErrNotFound           = errors.New("registration not found")
	ErrAlreadyRegistered  = errors.New("already registered to this event")
	ErrTicketExists       = errors.New("ticket code already in use")
	ErrEventFull          = errors.New("this event is full")
	ErrRegistrationClosed = errors.New("registration is closed for this event")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		// SaveRegistration inserts (empty ID) or updates a confirmed Registration,
		// provided the Event holds less than `capacity` other confirmed registrations (0: unlimited).
		// It returns ErrEventFull, ErrAlreadyRegistered or ErrTicketExists on conflicts.
		SaveRegistration(ctx context.Context, reg Registration, capacity int, exec ...core.DBExecutor) (Registration, error)
		UpdateRegistration(ctx context.Context, reg Registration, exec ...core.DBExecutor) (Registration, error)
		GetRegistration(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Registration, error)
		QueryRegistrations(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Registration, error)
		// FindDuplicates returns the registrations (any status) of the Event using `email` or `rollNumber`.
		FindDuplicates(ctx context.Context, eventID, email, rollNumber string, exec ...core.DBExecutor) ([]Registration, error)
		CountRegistrations(ctx context.Context, eventID, status string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Register(ctx context.Context, eventID string, nr NewRegistration) (Registration, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Registration, error)
		GetByID(ctx context.Context, id string) (Registration, error)
		GetByTicket(ctx context.Context, code string) (Registration, error)
		Cancel(ctx context.Context, id string) (Registration, error)
		CountConfirmed(ctx context.Context, eventID string) (int, error)
	}

	service struct {
		repo    Repository
		events  event.Service
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, events event.Service, mailSvc core.EmailService) Service {
	return &service{
		repo:    repo,
		events:  events,
		mailSvc: mailSvc,
	}
}

// Register confirms the registration of a student to an Event and emails them their ticket.
// A previously cancelled registration with the same email is reactivated with a new ticket.
func (svc *service) Register(ctx context.Context, eventID string, nr NewRegistration) (Registration, error) {
	evt, err := svc.events.GetByID(ctx, eventID)
	if err != nil {
		return Registration{}, err
	}
	now := nowFunc().UTC()
	if !evt.AcceptsRegistrations(now) {
		return Registration{}, core.NewValidationError(ErrRegistrationClosed)
	}

	reg := Registration{
		EventID:    evt.ID,
		Name:       nr.Name,
		Email:      nr.Email,
		Phone:      nr.Phone,
		RollNumber: nr.RollNumber,
		Campus:     nr.Campus,
		Domain:     nr.Domain,
		Status:     StatusConfirmed,
		CreatedAt:  core.NowUTC(),
	}

	dups, err := svc.repo.FindDuplicates(ctx, evt.ID, nr.Email, nr.RollNumber)
	if err != nil {
		return Registration{}, errors.Wrap(err, "finding duplicate registrations")
	}
	for _, dup := range dups {
		if dup.Confirmed() {
			if dup.Email == nr.Email {
				return Registration{}, core.NewFieldError("email", ErrAlreadyRegistered)
			}
			return Registration{}, core.NewFieldError("roll_number", ErrAlreadyRegistered)
		}
		if reg.ID == "" && dup.Email == nr.Email {
			reg.ID = dup.ID
			reg.CreatedAt = dup.CreatedAt
		}
	}

	for attempt := 1; ; attempt++ {
		if reg.TicketCode, err = NewTicketCode(); err != nil {
			return Registration{}, errors.Wrap(err, "generating ticket code")
		}
		reg.UpdatedAt = core.NowUTC()

		var saved Registration
		saved, err = svc.repo.SaveRegistration(ctx, reg, evt.Capacity)
		switch errors.Cause(err) {
		case nil:
			svc.sendConfirmationMail(evt, saved)
			return saved, nil
		case ErrTicketExists:
			if attempt < maxTicketAttempts {
				continue
			}
			return Registration{}, errors.Wrap(err, "saving registration")
		case ErrEventFull:
			return Registration{}, core.NewValidationError(ErrEventFull)
		case ErrAlreadyRegistered:
			return Registration{}, core.NewFieldError("email", ErrAlreadyRegistered)
		default:
			return Registration{}, errors.Wrap(err, "saving registration")
		}
	}
}

func (svc *service) sendConfirmationMail(evt event.Event, reg Registration) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: reg.Name, Address: reg.Email}},
		Subject:      "Registration confirmed: " + evt.Name,
		TemplateName: "registration_confirmed",
		TemplateData: map[string]interface{}{
			"Name":       reg.Name,
			"EventName":  evt.Name,
			"StartsAt":   evt.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST"),
			"Venue":      evt.Venue,
			"TicketCode": reg.TicketCode,
		},
	})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Registration, error) {
	return svc.repo.QueryRegistrations(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Registration, error) {
	return svc.repo.GetRegistration(ctx, GetFilter{ID: id})
}

func (svc *service) GetByTicket(ctx context.Context, code string) (Registration, error) {
	return svc.repo.GetRegistration(ctx, GetFilter{TicketCode: NormalizeTicketCode(code)})
}

func (svc *service) Cancel(ctx context.Context, id string) (Registration, error) {
	reg, err := svc.GetByID(ctx, id)
	if err != nil {
		return Registration{}, err
	}
	if !reg.Confirmed() {
		return reg, nil
	}
	reg.Status = StatusCancelled
	reg.UpdatedAt = core.NowUTC()
	return svc.repo.UpdateRegistration(ctx, reg)
}

func (svc *service) CountConfirmed(ctx context.Context, eventID string) (int, error) {
	return svc.repo.CountRegistrations(ctx, eventID, StatusConfirmed)
}
