package echoapi

import (
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
	"github.com/trezcool/rollcall/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errSessionExpired       = echo.NewHTTPError(http.StatusUnauthorized, "attendance session expired or revoked")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyRequests      = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, slow down")
)

// domainStatuses maps the domain errors to their HTTP status.
var domainStatuses = map[error]int{
	user.ErrNotFound:         http.StatusNotFound,
	event.ErrNotFound:        http.StatusNotFound,
	registration.ErrNotFound: http.StatusNotFound,

	attendance.ErrSessionNotFound:       http.StatusNotFound,
	attendance.ErrRecordNotFound:        http.StatusNotFound,
	attendance.ErrSessionInactive:       http.StatusGone,
	attendance.ErrInvalidTicket:         http.StatusBadRequest,
	attendance.ErrCodeMalformed:         http.StatusBadRequest,
	attendance.ErrCodeInvalid:           http.StatusBadRequest,
	attendance.ErrCodeExpired:           http.StatusBadRequest,
	attendance.ErrLocationRequired:      http.StatusBadRequest,
	attendance.ErrUnknownAction:         http.StatusBadRequest,
	attendance.ErrUnknownStatus:         http.StatusBadRequest,
	attendance.ErrCodeReplayed:          http.StatusConflict,
	attendance.ErrTooSoon:               http.StatusConflict,
	attendance.ErrAlreadyCheckedIn:      http.StatusConflict,
	attendance.ErrNotCheckedIn:          http.StatusConflict,
	attendance.ErrDeviceMismatch:        http.StatusForbidden,
	attendance.ErrOutsideGeofence:       http.StatusForbidden,
	attendance.ErrWrongEvent:            http.StatusForbidden,
	attendance.ErrEventClosed:           http.StatusForbidden,
	attendance.ErrRegistrationCancelled: http.StatusForbidden,
}

func domainStatus(err error) (int, bool) {
	if err == nil || !reflect.TypeOf(err).Comparable() {
		return 0, false
	}
	status, ok := domainStatuses[err]
	return status, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if status, ok := domainStatus(origErr); ok {
				code = status
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr core.LogUser
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr = claims.logUser()
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
