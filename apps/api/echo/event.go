package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
)

var errEvtNotFoundInCtx = errors.New("event object not found in echo.Context")

type eventApi struct {
	events        event.Service
	registrations registration.Service
	attendance    attendance.Service
	validate      *validator.Validate
}

func registerEventAPI(g *echo.Group, jwt echo.MiddlewareFunc, limit *ipRateLimiter, deps ServerDeps) {
	api := eventApi{
		events:        deps.EventSvc,
		registrations: deps.RegistrationSvc,
		attendance:    deps.AttendanceSvc,
		validate:      deps.Validate,
	}

	eg := g.Group("/events")

	// admin endpoints
	ag := eg.Group("", jwt, adminMiddleware())
	ag.POST("", api.create)

	dg := ag.Group("/:id", api.eventMiddleware)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/stats", api.stats)
	dg.GET("/attendance", api.attendees)
	dg.GET("/attendance.csv", api.exportAttendance)
	dg.PUT("/attendance/:rid", api.overrideAttendance)
	dg.GET("/registrations", api.queryRegistrations)
	dg.DELETE("/registrations/:rid", api.cancelRegistration)
	dg.DELETE("/registrations/:rid/sessions", api.resetDevice)

	// public endpoints, registered last: they replace the catch-all routes of the admin groups
	eg.GET("", api.query)
	eg.GET("/:id", api.retrieve, api.eventMiddleware)
	eg.POST("/:id/registrations", api.register, limit.middleware, api.eventMiddleware)
}

// eventMiddleware loads the Event of the `:id` path param, which may also be its slug.
func (api *eventApi) eventMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		rctx := ctx.Request().Context()
		key := ctx.Param("id")

		evt, err := api.events.GetByID(rctx, key)
		if errors.Cause(err) == event.ErrNotFound {
			evt, err = api.events.GetBySlug(rctx, key)
		}
		if err != nil {
			if errors.Cause(err) == event.ErrNotFound {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding event")
		}
		ctx.Set(contextObjectKey, evt)
		return next(ctx)
	}
}

func contextEvent(ctx echo.Context) (event.Event, error) {
	evt, ok := ctx.Get(contextObjectKey).(event.Event)
	if !ok {
		return event.Event{}, errors.Wrap(errEvtNotFoundInCtx, "retrieving object from context")
	}
	return evt, nil
}

// contextRegistration finds the registration of the `:rid` path param, among the context Event's.
func (api *eventApi) contextRegistration(ctx echo.Context, evt event.Event) (registration.Registration, error) {
	reg, err := api.registrations.GetByID(ctx.Request().Context(), ctx.Param("rid"))
	if err != nil {
		if errors.Cause(err) == registration.ErrNotFound {
			return reg, errHttpNotFound
		}
		return reg, errors.Wrap(err, "finding registration")
	}
	if reg.EventID != evt.ID {
		return reg, errHttpNotFound
	}
	return reg, nil
}

// Handlers

func (api *eventApi) query(ctx echo.Context) error {
	filter := new(event.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []event.Event{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	events, err := api.events.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *eventApi) create(ctx echo.Context) error {
	var data event.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.events); err != nil {
		return err
	}

	evt, err := api.events.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, evt)
}

func (api *eventApi) update(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}

	var data event.UpdateEvent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvent")
	}
	rctx := ctx.Request().Context()
	if evt, err = data.Validate(rctx, evt, api.validate, api.events); err != nil {
		return err
	}

	evt, err = api.events.Update(rctx, evt)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *eventApi) destroy(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}
	if err = api.events.Delete(ctx.Request().Context(), evt.ID); err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *eventApi) register(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}

	var data registration.NewRegistration
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRegistration")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reg, err := api.registrations.Register(ctx.Request().Context(), evt.ID, data)
	if err != nil {
		return errors.Wrap(err, "registering")
	}
	return ctx.JSON(http.StatusCreated, reg)
}

func (api *eventApi) queryRegistrations(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}

	filter := new(registration.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []registration.Registration{})
	}
	filter.Clean()
	filter.EventID = evt.ID
	ordering := new(Ordering)
	ordering.Bind(ctx)

	regs, err := api.registrations.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying registrations")
	}
	if regs == nil {
		regs = []registration.Registration{}
	}
	return ctx.JSON(http.StatusOK, regs)
}

// cancelRegistration cancels a registration and revokes the attendance sessions of its devices.
func (api *eventApi) cancelRegistration(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}
	reg, err := api.contextRegistration(ctx, evt)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	if reg, err = api.registrations.Cancel(rctx, reg.ID); err != nil {
		return errors.Wrap(err, "cancelling registration")
	}
	if _, err = api.attendance.ResetDevice(rctx, reg.ID); err != nil {
		return errors.Wrap(err, "revoking attendance sessions")
	}
	return ctx.JSON(http.StatusOK, reg)
}

func (api *eventApi) resetDevice(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}
	reg, err := api.contextRegistration(ctx, evt)
	if err != nil {
		return err
	}

	n, err := api.attendance.ResetDevice(ctx.Request().Context(), reg.ID)
	if err != nil {
		return errors.Wrap(err, "resetting device")
	}
	return ctx.JSON(http.StatusOK, RevokedResponse{Revoked: n})
}

func (api *eventApi) stats(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}
	stats, err := api.attendance.Stats(ctx.Request().Context(), evt.ID)
	if err != nil {
		return errors.Wrap(err, "computing attendance stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *eventApi) attendees(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}

	filter := new(attendance.AttendeeFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []attendance.Attendee{})
	}
	filter.Clean()

	attendees, err := api.attendance.Attendees(ctx.Request().Context(), evt.ID, filter)
	if err != nil {
		return errors.Wrap(err, "listing attendees")
	}
	if attendees == nil {
		attendees = []attendance.Attendee{}
	}
	return ctx.JSON(http.StatusOK, attendees)
}

func (api *eventApi) exportAttendance(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}

	// buffered, so that a failing export still gets a proper error response
	var buf bytes.Buffer
	if err = api.attendance.ExportCSV(ctx.Request().Context(), evt.ID, &buf); err != nil {
		return errors.Wrap(err, "exporting attendance")
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", evt.Slug+"-attendance.csv"))
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (api *eventApi) overrideAttendance(ctx echo.Context) error {
	evt, err := contextEvent(ctx)
	if err != nil {
		return err
	}

	var data attendance.RecordOverride
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordOverride")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	rec, err := api.attendance.Override(ctx.Request().Context(), evt.ID, ctx.Param("rid"), data, claims.Subject)
	if err != nil {
		if errors.Cause(err) == registration.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "overriding attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

type RevokedResponse struct {
	Revoked int `json:"revoked"`
}
