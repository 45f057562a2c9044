package echoapi

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

const qrCodeSize = 256

type attendanceApi struct {
	conf     *core.Config
	svc      attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(
	g *echo.Group,
	staffJWT, attendeeJWT echo.MiddlewareFunc,
	authLimit, scanLimit *ipRateLimiter,
	deps ServerDeps,
) {
	api := attendanceApi{
		conf:     deps.Conf,
		svc:      deps.AttendanceSvc,
		validate: deps.Validate,
	}

	ag := g.Group("/attendance")

	// attendee devices
	dg := ag.Group("", attendeeJWT, deviceMiddleware(api.svc))
	dg.GET("/code", api.code)
	dg.GET("/code.png", api.codePNG)
	dg.GET("/status", api.status)

	// scanner stations & admins
	ag.POST("/scan", api.scan, staffJWT, scannerMiddleware, scanLimit.middleware)
	ag.DELETE("/sessions/:id", api.revokeSession, staffJWT, adminMiddleware())

	ag.POST("/session", api.startSession, authLimit.middleware)
}

// Handlers

func (api *attendanceApi) startSession(ctx echo.Context) error {
	var data attendance.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if data.DeviceID == "" {
		data.DeviceID = ctx.Request().Header.Get(HeaderDeviceID)
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.StartSession(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "starting attendance session")
	}
	token, err := GenerateToken(api.conf, GetAttendeeClaims(api.conf, sess))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusCreated, SessionResponse{
		Token:         token,
		SessionID:     sess.ID,
		EventID:       sess.EventID,
		ExpiresAt:     sess.ExpiresAt,
		WindowSeconds: api.conf.Attendance.CodeWindow.Seconds(),
		Salt:          base64.RawURLEncoding.EncodeToString(sess.Salt),
	})
}

func (api *attendanceApi) code(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	code, err := api.svc.CurrentCode(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "generating attendance code")
	}
	return ctx.JSON(http.StatusOK, code)
}

func (api *attendanceApi) codePNG(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	code, err := api.svc.CurrentCode(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "generating attendance code")
	}

	png, err := qrcode.Encode(code.Payload, qrcode.Medium, qrCodeSize)
	if err != nil {
		return errors.Wrap(err, "encoding qr code")
	}

	header := ctx.Response().Header()
	header.Set("Cache-Control", "no-store")
	header.Set("X-Code-Expires-At", code.ExpiresAt.Format(time.RFC3339Nano))
	header.Set("X-Code-Bucket", strconv.FormatInt(code.Bucket, 10))
	return ctx.Blob(http.StatusOK, "image/png", png)
}

func (api *attendanceApi) status(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	rec, err := api.svc.Status(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "getting attendance status")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) scan(ctx echo.Context) error {
	var data attendance.ScanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScanRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	res, err := api.svc.Scan(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "scanning attendance code")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) revokeSession(ctx echo.Context) error {
	if err := api.svc.RevokeSession(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if errors.Cause(err) == attendance.ErrSessionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "revoking attendance session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type SessionResponse struct {
	Token         string    `json:"token"`
	SessionID     string    `json:"session_id"`
	EventID       string    `json:"event_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	WindowSeconds float64   `json:"window_seconds"`
	Salt          string    `json:"salt"` // base64url, lets the device compute codes offline
}
