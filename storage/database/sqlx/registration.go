package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
)

const registrationColumns = `id, event_id, name, email, phone, roll_number, campus, domain, ticket_code, status, created_at, updated_at`

var registrationOrderings = map[string]string{
	"name":        "name",
	"roll_number": "roll_number",
	"campus":      "campus",
	"created_at":  "created_at",
}

type registrationRow struct {
	ID         string      `db:"id"`
	EventID    string      `db:"event_id"`
	Name       string      `db:"name"`
	Email      string      `db:"email"`
	Phone      null.String `db:"phone"`
	RollNumber string      `db:"roll_number"`
	Campus     string      `db:"campus"`
	Domain     string      `db:"domain"`
	TicketCode string      `db:"ticket_code"`
	Status     string      `db:"status"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

type registrationRepository struct {
	repo
}

var _ registration.Repository = (*registrationRepository)(nil) // interface compliance check

func NewRegistrationRepository(db core.DB) registration.Repository {
	return &registrationRepository{repo{db: db}}
}

func (registrationRepository) toRow(reg registration.Registration) registrationRow {
	return registrationRow{
		ID:         reg.ID,
		EventID:    reg.EventID,
		Name:       reg.Name,
		Email:      reg.Email,
		Phone:      null.NewString(reg.Phone, reg.Phone != ""),
		RollNumber: reg.RollNumber,
		Campus:     reg.Campus,
		Domain:     reg.Domain,
		TicketCode: reg.TicketCode,
		Status:     reg.Status,
		CreatedAt:  reg.CreatedAt.UTC(),
		UpdatedAt:  reg.UpdatedAt.UTC(),
	}
}

func (registrationRepository) fromRow(row registrationRow) registration.Registration {
	return registration.Registration{
		ID:         row.ID,
		EventID:    row.EventID,
		Name:       row.Name,
		Email:      row.Email,
		Phone:      row.Phone.String,
		RollNumber: row.RollNumber,
		Campus:     row.Campus,
		Domain:     row.Domain,
		TicketCode: row.TicketCode,
		Status:     row.Status,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func (registrationRepository) trapUniqueErr(err error, msg string) error {
	switch c, ok := violatedConstraint(err); {
	case ok && c == "registration_ticket_code_key":
		return registration.ErrTicketExists
	case ok && (c == "registration_event_email_uniq" || c == "registration_event_roll_number_uniq"):
		return registration.ErrAlreadyRegistered
	}
	return errors.Wrap(err, msg)
}

func (r registrationRepository) SaveRegistration(ctx context.Context, reg registration.Registration, capacity int, exec ...core.DBExecutor) (registration.Registration, error) {
	isNew := reg.ID == ""
	if isNew {
		reg.ID = uuid.New().String()
	}
	row := r.toRow(reg)

	err := r.inTx(ctx, exec, func(exe core.DBExecutor) error {
		// concurrent registrations to the same event queue up behind this lock
		var eventID string
		q := exe.Rebind(`SELECT id FROM event WHERE id = ? FOR UPDATE`)
		if err := exe.GetContext(ctx, &eventID, q, reg.EventID); err != nil {
			return trapNoRows(err, event.ErrNotFound, "locking event")
		}

		if capacity > 0 {
			var confirmed int
			q = exe.Rebind(`SELECT COUNT(*) FROM registration WHERE event_id = ? AND status = ? AND id <> ?`)
			if err := exe.GetContext(ctx, &confirmed, q, reg.EventID, registration.StatusConfirmed, reg.ID); err != nil {
				return errors.Wrap(err, "counting registrations")
			}
			if confirmed >= capacity {
				return registration.ErrEventFull
			}
		}

		if isNew {
			q = `INSERT INTO registration (` + registrationColumns + `)
				VALUES (:id, :event_id, :name, :email, :phone, :roll_number, :campus, :domain, :ticket_code, :status, :created_at, :updated_at)`
			if _, err := sqlx.NamedExecContext(ctx, exe, q, row); err != nil {
				return r.trapUniqueErr(err, "inserting registration")
			}
			return nil
		}
		return r.update(ctx, exe, row)
	})
	if err != nil {
		return registration.Registration{}, err
	}
	return r.fromRow(row), nil
}

func (r registrationRepository) update(ctx context.Context, exe core.DBExecutor, row registrationRow) error {
	q := `UPDATE registration SET
		name = :name, email = :email, phone = :phone, roll_number = :roll_number, campus = :campus,
		domain = :domain, ticket_code = :ticket_code, status = :status, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, exe, q, row)
	if err != nil {
		return r.trapUniqueErr(err, "updating registration")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return registration.ErrNotFound
	}
	return nil
}

func (r registrationRepository) UpdateRegistration(ctx context.Context, reg registration.Registration, exec ...core.DBExecutor) (registration.Registration, error) {
	row := r.toRow(reg)
	if err := r.update(ctx, r.getExec(exec), row); err != nil {
		return registration.Registration{}, err
	}
	return r.fromRow(row), nil
}

func (r registrationRepository) GetRegistration(ctx context.Context, filter registration.GetFilter, exec ...core.DBExecutor) (registration.Registration, error) {
	var w where
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return registration.Registration{}, registration.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.TicketCode != "":
		w.add("ticket_code = ?", filter.TicketCode)
	default:
		return registration.Registration{}, registration.ErrNotFound
	}

	exe := r.getExec(exec)
	var row registrationRow
	q := exe.Rebind(`SELECT ` + registrationColumns + ` FROM registration` + w.String())
	if err := exe.GetContext(ctx, &row, q, w.args...); err != nil {
		return registration.Registration{}, trapNoRows(err, registration.ErrNotFound, "finding registration")
	}
	return r.fromRow(row), nil
}

func (r registrationRepository) QueryRegistrations(ctx context.Context, filter *registration.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]registration.Registration, error) {
	var w where
	if filter != nil {
		if filter.EventID != "" {
			if _, err := uuid.Parse(filter.EventID); err != nil {
				return []registration.Registration{}, nil
			}
			w.add("event_id = ?", filter.EventID)
		}
		if filter.Search != "" {
			val := ilike(filter.Search)
			w.add("name ILIKE ? OR email ILIKE ? OR roll_number ILIKE ? OR ticket_code ILIKE ?", val, val, val, val)
		}
		if filter.Campus != "" {
			w.add("campus = ?", filter.Campus)
		}
		if filter.Domain != "" {
			w.add("domain = ?", filter.Domain)
		}
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
	}

	exe := r.getExec(exec)
	q := exe.Rebind(`SELECT ` + registrationColumns + ` FROM registration` + w.String() +
		core.OrderByClause(ordering, registrationOrderings, "created_at ASC"))
	var rows []registrationRow
	if err := exe.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}

	regs := make([]registration.Registration, 0, len(rows))
	for _, row := range rows {
		regs = append(regs, r.fromRow(row))
	}
	return regs, nil
}

func (r registrationRepository) FindDuplicates(ctx context.Context, eventID, email, rollNumber string, exec ...core.DBExecutor) ([]registration.Registration, error) {
	exe := r.getExec(exec)
	q := exe.Rebind(`SELECT ` + registrationColumns + ` FROM registration
		WHERE event_id = ? AND (email = ? OR roll_number = ?)`)
	var rows []registrationRow
	if err := exe.SelectContext(ctx, &rows, q, eventID, email, rollNumber); err != nil {
		return nil, errors.Wrap(err, "finding duplicate registrations")
	}

	var dups []registration.Registration
	for _, row := range rows {
		dups = append(dups, r.fromRow(row))
	}
	return dups, nil
}

func (r registrationRepository) CountRegistrations(ctx context.Context, eventID, status string, exec ...core.DBExecutor) (int, error) {
	var w where
	w.add("event_id = ?", eventID)
	if status != "" {
		w.add("status = ?", status)
	}

	exe := r.getExec(exec)
	var cnt int
	if err := exe.GetContext(ctx, &cnt, exe.Rebind(`SELECT COUNT(*) FROM registration`+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting registrations")
	}
	return cnt, nil
}
