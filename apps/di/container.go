// Package di wires the dependencies shared by the API server and the admin CLI.
package di

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
	"github.com/trezcool/rollcall/core/user"
	emailsvc "github.com/trezcool/rollcall/services/email"
	logsvc "github.com/trezcool/rollcall/services/logger"
	"github.com/trezcool/rollcall/storage/database"
	dummydb "github.com/trezcool/rollcall/storage/database/dummy"
	sqlxrepos "github.com/trezcool/rollcall/storage/database/sqlx"
	"github.com/trezcool/rollcall/storage/replay"
)

const (
	replayGCInterval    = 5 * time.Minute
	replaySweepInterval = time.Minute
)

type Options struct {
	LogPrefix string // ie: "API : "
	// Migrate applies the pending migrations once connected to postgres.
	Migrate bool
}

// Container holds the configured services of the application.
type Container struct {
	Conf       *core.Config
	Logger     *logsvc.RollbarLogger
	DBLogger   *logsvc.RollbarLogger
	DB         *sqlx.DB // nil with the memory engine
	Validate   *validator.Validate
	Translator ut.Translator
	MailSvc    core.EmailService
	Replay     attendance.ReplayGuard

	UserRepo user.Repository

	UserSvc         user.Service
	EventSvc        event.Service
	RegistrationSvc registration.Service
	AttendanceSvc   attendance.Service
}

func New(ctx context.Context, conf *core.Config, opts Options) (*Container, error) {
	c := &Container{
		Conf:       conf,
		Logger:     newLogger(conf, opts.LogPrefix),
		DBLogger:   newLogger(conf, "DB : "),
		Validate:   validator.New(),
		Translator: core.NewTranslator(),
	}

	core.InitValidators(c.Validate, c.Translator)
	core.InitSegmentValidators(c.Validate, c.Translator, conf)
	user.InitValidators(c.Validate, c.Translator)
	attendance.InitValidators(c.Validate, c.Translator)

	var (
		evtRepo event.Repository
		regRepo registration.Repository
		attRepo attendance.Repository
	)
	if conf.Database.IsMemory() {
		db := dummydb.Open()
		c.UserRepo = dummydb.NewUserRepository(db)
		evtRepo = dummydb.NewEventRepository(db)
		regRepo = dummydb.NewRegistrationRepository(db)
		attRepo = dummydb.NewAttendanceRepository(db)
	} else {
		db, err := setUpDB(ctx, conf, opts.Migrate)
		if err != nil {
			return nil, errors.Wrap(err, "setting up database")
		}
		c.DB = db
		c.UserRepo = sqlxrepos.NewUserRepository(db)
		evtRepo = sqlxrepos.NewEventRepository(db)
		regRepo = sqlxrepos.NewRegistrationRepository(db)
		attRepo = sqlxrepos.NewAttendanceRepository(db)
	}

	var err error
	if c.Replay, err = newReplayGuard(conf.Attendance); err != nil {
		c.Close()
		return nil, err
	}

	if conf.Debug {
		c.MailSvc = emailsvc.NewConsoleService(conf, c.Logger)
	} else {
		c.MailSvc = emailsvc.NewSendgridService(conf, c.Logger)
	}

	c.UserSvc = user.NewService(c.UserRepo, c.MailSvc, conf)
	c.EventSvc = event.NewService(evtRepo)
	c.RegistrationSvc = registration.NewService(regRepo, c.EventSvc, c.MailSvc)
	c.AttendanceSvc = attendance.NewService(attRepo, c.RegistrationSvc, c.EventSvc, c.Replay, conf.Attendance, c.Logger)
	return c, nil
}

// RunMaintenance compacts the replay store until `ctx` is done.
func (c *Container) RunMaintenance(ctx context.Context) {
	switch g := c.Replay.(type) {
	case *replay.BadgerGuard:
		g.RunGC(ctx, replayGCInterval)
	case *attendance.MemoryReplayGuard:
		ticker := time.NewTicker(replaySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.Sweep()
			}
		}
	}
}

// Close releases the replay store & database, and flushes the logs.
func (c *Container) Close() {
	if c.Replay != nil {
		if err := c.Replay.Close(); err != nil {
			c.Logger.Error(fmt.Sprintf("closing replay store: %v", err), err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.DBLogger.Error("Failed to close", err)
		}
	}
	c.Logger.Wait()
}

func newLogger(conf *core.Config, prefix string) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func setUpDB(ctx context.Context, conf *core.Config, migrate bool) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err = database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func newReplayGuard(conf core.AttendanceConfig) (attendance.ReplayGuard, error) {
	if conf.ReplayStore != "badger" {
		return attendance.NewMemoryReplayGuard(), nil
	}
	g, err := replay.Open(conf.ReplayDir)
	if err != nil {
		return nil, errors.Wrap(err, "setting up replay store")
	}
	return g, nil
}
