package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/rollcall/apps/api/echo"
	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
	"github.com/trezcool/rollcall/core/user"
	emailsvc "github.com/trezcool/rollcall/services/email"
	dummydb "github.com/trezcool/rollcall/storage/database/dummy"
	"github.com/trezcool/rollcall/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type fixture struct {
	conf    *core.Config
	app     *echoapi.Server
	mailSvc *emailsvc.ConsoleServiceMock

	usrRepo user.Repository
	evtRepo event.Repository
	regRepo registration.Repository
}

func setup(t *testing.T, confOpts ...func(*core.Config)) *fixture {
	t.Helper()

	conf := core.NewTestConfig()
	for _, opt := range confOpts {
		opt(conf)
	}
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(logger, false)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	core.InitSegmentValidators(validate, translator, conf)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	db := dummydb.Open()
	f := &fixture{
		conf:    conf,
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
		usrRepo: dummydb.NewUserRepository(db),
		evtRepo: dummydb.NewEventRepository(db),
		regRepo: dummydb.NewRegistrationRepository(db),
	}

	events := event.NewService(f.evtRepo)
	regs := registration.NewService(f.regRepo, events, f.mailSvc)
	f.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         user.NewService(f.usrRepo, f.mailSvc, conf),
		EventSvc:        events,
		RegistrationSvc: regs,
		AttendanceSvc: attendance.NewService(
			dummydb.NewAttendanceRepository(db),
			regs,
			events,
			attendance.NewMemoryReplayGuard(),
			conf.Attendance,
			logger,
		),
		DisableReqLogs: true,
	})
	return f
}

func (f *fixture) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(f.conf, echoapi.GetUserClaims(f.conf, usr))
	require.NoError(t, err)
	return token
}

func (f *fixture) admin(t *testing.T) (user.User, string) {
	t.Helper()
	usr := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@rollcall.test", "L0ng&Compl3x", []string{user.RoleAdmin}, true)
	return usr, f.token(t, usr)
}

func (f *fixture) scanner(t *testing.T) (user.User, string) {
	t.Helper()
	usr := testutil.CreateUser(t, f.usrRepo, "Gate", "gate1", "gate1@rollcall.test", "L0ng&Compl3x", []string{user.RoleScanner}, true)
	return usr, f.token(t, usr)
}

type request struct {
	method  string
	path    string
	token   string
	body    interface{}
	headers map[string]string
}

func (f *fixture) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}
	method := r.method
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var herr httpErr
	decode(t, rec, &herr)
	return herr.Error
}
