package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	minCodeWindow = 2 * time.Second
	maxCodeWindow = 10 * time.Second
)

type (
	Config struct {
		Env      string // DEV (local; default), TEST, QA, PROD
		Build    string
		Debug    bool
		TestMode bool
		WorkDir  string

		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		PasswordResetTimeoutDelta time.Duration

		// allowed values of registration.Campus & registration.Domain
		Campuses []string
		Domains  []string

		Server     ServerConfig
		Database   DatabaseConfig
		Attendance AttendanceConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CORSOrigins               []string

		// per client IP, per minute
		AuthRateLimit int
		ScanRateLimit int
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	AttendanceConfig struct {
		CodeWindow           time.Duration // lifetime of one rotating code
		CodeSkew             int           // accepted buckets around the current one
		SessionTTL           time.Duration
		RememberedSessionTTL time.Duration
		ToggleCooldown       time.Duration
		CheckInLead          time.Duration // scans accepted this long before an event starts
		CheckOutGrace        time.Duration // ... and this long after it ends
		RequireLocation      bool
		ReplayStore          string // memory | badger
		ReplayDir            string
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// IsMemory is true when repositories should be kept in memory instead of postgres.
func (dbc DatabaseConfig) IsMemory() bool {
	return dbc.Engine == "memory"
}

// NewConfig loads the configuration of the current environment.
//
// Values are read from `<ENV>_<KEY>` environment variables (ie: DEV_DATABASE_HOST),
// which may be defined in `config/.env.<env>`.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:      env,
		Build:    v.GetString("build"),
		Debug:    v.GetBool("debug"),
		TestMode: v.GetBool("testMode"),
		WorkDir:  wd,

		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("appName"),
			Address: v.GetString("defaultFromEmail"),
		},
		SendgridApiKey: v.GetString("sendgridApiKey"),
		RollbarToken:   v.GetString("rollbarToken"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Campuses: splitList(v.GetString("campuses")),
		Domains:  splitList(v.GetString("domains")),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			CORSOrigins:               splitList(v.GetString("server.corsOrigins")),
			AuthRateLimit:             v.GetInt("server.authRateLimit"),
			ScanRateLimit:             v.GetInt("server.scanRateLimit"),
		},

		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},

		Attendance: AttendanceConfig{
			CodeWindow:           clampWindow(v.GetDuration("attendance.codeWindow")),
			CodeSkew:             v.GetInt("attendance.codeSkew"),
			SessionTTL:           v.GetDuration("attendance.sessionTTL"),
			RememberedSessionTTL: v.GetDuration("attendance.rememberedSessionTTL"),
			ToggleCooldown:       v.GetDuration("attendance.toggleCooldown"),
			CheckInLead:          v.GetDuration("attendance.checkInLead"),
			CheckOutGrace:        v.GetDuration("attendance.checkOutGrace"),
			RequireLocation:      v.GetBool("attendance.requireLocation"),
			ReplayStore:          v.GetString("attendance.replayStore"),
			ReplayDir:            v.GetString("attendance.replayDir"),
		},
	}
	if conf.Attendance.CodeSkew < 0 {
		conf.Attendance.CodeSkew = 0
	}
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Rollcall")
	v.SetDefault("secretKey", "r0ll-c4ll)dev$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("campuses", "main")
	v.SetDefault("domains", "general")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.corsOrigins", "")
	v.SetDefault("server.authRateLimit", 20)
	v.SetDefault("server.scanRateLimit", 240)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "rollcall")
	v.SetDefault("database.user", "rollcall")
	v.SetDefault("database.password", "rollcall")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("attendance.codeWindow", minCodeWindow)
	v.SetDefault("attendance.codeSkew", 1)
	v.SetDefault("attendance.sessionTTL", 12*time.Hour)
	v.SetDefault("attendance.rememberedSessionTTL", 30*24*time.Hour)
	v.SetDefault("attendance.toggleCooldown", 30*time.Second)
	v.SetDefault("attendance.checkInLead", time.Hour)
	v.SetDefault("attendance.checkOutGrace", 2*time.Hour)
	v.SetDefault("attendance.requireLocation", false)
	v.SetDefault("attendance.replayStore", "memory")
	v.SetDefault("attendance.replayDir", filepath.Join(os.TempDir(), "rollcall-replay"))
}

// NewTestConfig returns the configuration used by package tests: no env lookups.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		Debug:            true,
		TestMode:         true,
		AppName:          "Rollcall",
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Rollcall", Address: "noreply@test.local"},

		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,

		Campuses: []string{"amritapuri", "bengaluru", "coimbatore"},
		Domains:  []string{"ai", "systems", "web"},

		Server: ServerConfig{
			Address:                   ":0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Database: DatabaseConfig{Engine: "memory"},
		Attendance: AttendanceConfig{
			CodeWindow:           minCodeWindow,
			CodeSkew:             1,
			SessionTTL:           12 * time.Hour,
			RememberedSessionTTL: 30 * 24 * time.Hour,
			ToggleCooldown:       30 * time.Second,
			CheckInLead:          time.Hour,
			CheckOutGrace:        2 * time.Hour,
			ReplayStore:          "memory",
		},
	}
}

func clampWindow(w time.Duration) time.Duration {
	switch {
	case w < minCodeWindow:
		return minCodeWindow
	case w > maxCodeWindow:
		return maxCodeWindow
	}
	return w
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item, true /* lower */); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getwd looks for the module root (the directory holding go.mod) from the working directory,
// since go-test changes the working directory to the package being tested.
// It falls back to the working directory itself.
func getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(fmt.Errorf("config.getwd: %w", err))
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
