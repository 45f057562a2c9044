package echoapi

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/trezcool/rollcall/core/attendance"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// scannerMiddleware lets admins and scanner volunteers through.
func scannerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsAdmin || claims.IsScanner {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// deviceMiddleware loads the attendance session of the attendee token,
// and refuses requests not coming from the device it is bound to.
func deviceMiddleware(svc attendance.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getAttendeeClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting attendee claims")
			}

			sess, err := svc.GetSession(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if errors.Cause(err) == attendance.ErrSessionNotFound {
					return errSessionExpired
				}
				return errors.Wrap(err, "finding attendance session")
			}
			if !sess.Active(time.Now()) {
				return errSessionExpired
			}
			if !sameDevice(ctx.Request().Header.Get(HeaderDeviceID), sess.DeviceID) {
				return attendance.ErrDeviceMismatch
			}
			ctx.Set(contextSessionKey, sess)
			return next(ctx)
		}
	}
}

// ipRateLimiter keeps a token bucket per client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	calls    int
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

const limiterSweepEvery = 4096

// newIPRateLimiter allows `perMinute` requests per minute and client IP, in bursts of the same size.
// It returns nil when perMinute <= 0: no limit.
func newIPRateLimiter(perMinute int) *ipRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ipRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (rl *ipRateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.calls++
	if rl.calls%limiterSweepEvery == 0 {
		// idle buckets are full again: forget them
		for key, e := range rl.limiters {
			if now.Sub(e.lastAccess) > time.Minute {
				delete(rl.limiters, key)
			}
		}
	}

	e, ok := rl.limiters[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = e
	}
	e.lastAccess = now
	return e.limiter.AllowN(now, 1)
}

func (rl *ipRateLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	if rl == nil {
		return next
	}
	return func(ctx echo.Context) error {
		if !rl.allow(ctx.RealIP(), time.Now()) {
			return errTooManyRequests
		}
		return next(ctx)
	}
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rollcall",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route & status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rollcall",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time spent serving HTTP requests, by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)
		if err != nil {
			// let the error handler write the response before reading its status
			ctx.Error(err)
		}

		route, method := ctx.Path(), ctx.Request().Method
		httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(ctx.Response().Status)).Inc()
		httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return nil
	}
}
