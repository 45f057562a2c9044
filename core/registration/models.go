package registration

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/rollcall/core"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

var phoneReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

type Registration struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	RollNumber string    `json:"roll_number"`
	Campus     string    `json:"campus"`
	Domain     string    `json:"domain"`
	TicketCode string    `json:"ticket_code"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (r Registration) Confirmed() bool {
	return r.Status == StatusConfirmed
}

// NewRegistration contains what a student submits to register to an Event.
type NewRegistration struct {
	Name       string `json:"name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Phone      string `json:"phone" validate:"omitempty,e164"`
	RollNumber string `json:"roll_number" validate:"required,max=50,rollnumber"`
	Campus     string `json:"campus" validate:"required,campus"`
	Domain     string `json:"domain" validate:"required,domain"`
}

func (nr *NewRegistration) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.Email = core.CleanString(nr.Email, true /* lower */)
	nr.Phone = phoneReplacer.Replace(core.CleanString(nr.Phone))
	nr.RollNumber = strings.ToUpper(core.CleanString(nr.RollNumber))
	nr.Campus = core.CleanString(nr.Campus, true /* lower */)
	nr.Domain = core.CleanString(nr.Domain, true /* lower */)
	return validate.Struct(nr)
}

type QueryFilter struct {
	EventID string `query:"-"`
	Search  string `query:"search"`
	Campus  string `query:"campus"`
	Domain  string `query:"domain"`
	Status  string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Campus = core.CleanString(qf.Campus, true /* lower */)
	qf.Domain = core.CleanString(qf.Domain, true /* lower */)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// Matches applies the filter on a single Registration.
func (qf *QueryFilter) Matches(r Registration) bool {
	if qf == nil {
		return true
	}
	if qf.EventID != "" && r.EventID != qf.EventID {
		return false
	}
	if qf.Campus != "" && r.Campus != qf.Campus {
		return false
	}
	if qf.Domain != "" && r.Domain != qf.Domain {
		return false
	}
	if qf.Status != "" && r.Status != qf.Status {
		return false
	}
	if qf.Search != "" &&
		!core.ContainsFold(r.Name, qf.Search) &&
		!core.ContainsFold(r.Email, qf.Search) &&
		!core.ContainsFold(r.RollNumber, qf.Search) &&
		!core.ContainsFold(r.TicketCode, qf.Search) {
		return false
	}
	return true
}

type GetFilter struct {
	ID         string
	TicketCode string
}
