package echoapi

import (
	"net/http"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/user"
)

var (
	errStaffNotInCtx = errors.New("staff user not found in echo.Context")
	errRoleTooHigh   = core.NewValidationError(nil, core.FieldError{Field: "roles", Error: "not enough rights to grant these roles"})
)

const resetRequestedMsg = "If this email belongs to an active staff account, a password reset link is on its way."

// staffApi serves the accounts of the staff running events: admins and scanner stations.
type staffApi struct {
	conf     *core.Config
	logger   core.Logger
	svc      user.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, limit *ipRateLimiter, deps ServerDeps) {
	api := staffApi{
		conf:     deps.Conf,
		logger:   deps.Logger,
		svc:      deps.UserSvc,
		validate: deps.Validate,
	}
	admin := adminMiddleware()

	ug := g.Group("/users")
	ug.POST("/login", api.signIn, limit.middleware)
	ug.POST("/password-reset", api.requestReset, limit.middleware)
	ug.POST("/password-reset-confirm", api.confirmReset, limit.middleware)

	sg := ug.Group("", jwt)
	sg.POST("/token-refresh", api.refresh)
	sg.GET("/me", api.me)
	sg.POST("/register", api.createStaff, admin)
	sg.GET("", api.listStaff, admin)
	sg.DELETE("", api.removeStaffBatch, admin)
	sg.GET("/roles", api.roles, admin)

	dg := sg.Group("/:id", staffObjectMiddleware(api.svc))
	dg.GET("", api.getStaff)
	dg.PUT("", api.updateStaff)
	dg.DELETE("", api.removeStaff, admin)
}

func staffObject(ctx echo.Context) (user.User, error) {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return user.User{}, errors.Wrap(errStaffNotInCtx, "retrieving object from context")
	}
	return usr, nil
}

func (api *staffApi) signIn(ctx echo.Context) error {
	var req LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := req.Validate(api.validate); err != nil {
		return err
	}

	claims, err := authenticate(ctx, api.conf, req.Username, req.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	return api.tokenResponse(ctx, claims)
}

func (api *staffApi) refresh(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Admin: usr.IsAdmin(), Scanner: usr.IsScanner()})
}

func (api *staffApi) tokenResponse(ctx echo.Context, claims *Claims) error {
	token, err := GenerateToken(api.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Admin: claims.IsAdmin, Scanner: claims.IsScanner})
}

func (api *staffApi) requestReset(ctx echo.Context) error {
	var req PasswordResetRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := req.Validate(api.validate); err != nil {
		return err
	}

	// unknown emails get the same answer
	err := api.svc.RequestPasswordReset(ctx.Request().Context(), req.Email)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: resetRequestedMsg})
}

func (api *staffApi) confirmReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Your password has been changed."})
}

// me tells a signed in staff member what the API lets them do.
func (api *staffApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, StaffProfile{User: usr, CanManage: usr.IsAdmin(), CanScan: usr.CanScan()})
}

func (api *staffApi) createStaff(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !actor.CanGrant(data.Roles) {
		return errRoleTooHigh
	}

	usr, err := api.svc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *staffApi) listStaff(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	staff, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if staff == nil {
		staff = []user.User{}
	}
	return ctx.JSON(http.StatusOK, staff)
}

func (api *staffApi) roles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *staffApi) getStaff(ctx echo.Context) error {
	usr, err := staffObject(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *staffApi) updateStaff(ctx echo.Context) error {
	usr, err := staffObject(ctx)
	if err != nil {
		return err
	}
	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	actor, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// scanner stations may only rename themselves & change their password
	if !actor.IsAdmin() && (data.IsActive != nil || data.Roles != nil || data.Username != "" || data.Email != "") {
		return errHttpForbidden
	}

	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, usr, api.validate, api.svc); err != nil {
		return err
	}
	if !actor.CanGrant(data.Roles) {
		return errRoleTooHigh
	}

	if usr, err = api.svc.Update(rctx, usr.ID, data); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *staffApi) removeStaff(ctx echo.Context) error {
	usr, err := staffObject(ctx)
	if err != nil {
		return err
	}
	actor, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == actor.ID || !actor.CanGrant(usr.Roles) {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *staffApi) removeStaffBatch(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	actor, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if slices.Contains(query.IDs, actor.ID) {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// staffObjectMiddleware resolves `:id` for admins, or for the staff member themselves.
// Anybody else gets a 404.
func staffObjectMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			id := ctx.Param("id")
			if id != actor.ID && !actor.IsAdmin() {
				return errHttpNotFound
			}

			usr, err := svc.GetByID(ctx.Request().Context(), id)
			switch errors.Cause(err) {
			case nil:
				ctx.Set(contextObjectKey, usr)
				return next(ctx)
			case user.ErrNotFound:
				return errHttpNotFound
			default:
				return errors.Wrap(err, "finding user by ID")
			}
		}
	}
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	// LoginResponse carries a staff token and the portals it opens.
	LoginResponse struct {
		Token   string `json:"token"`
		Admin   bool   `json:"admin"`
		Scanner bool   `json:"scanner"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}

	StaffProfile struct {
		user.User
		CanManage bool `json:"can_manage"`
		CanScan   bool `json:"can_scan"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
