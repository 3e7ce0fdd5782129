package core

import (
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

type (
	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ServerConfig struct {
		Address            string
		DebugAddress       string
		Host               string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DashboardConfig struct {
		Horizon         time.Duration // upcoming window
		PastLimit       int           // most-recent past appointments considered for summaries
		FeedSize        int           // alert feed window
		SessionDuration time.Duration // assumed appointment length (ICS export)
		SessionTTL      time.Duration // idle dashboard sessions are unmounted after this
	}

	CronConfig struct {
		Tick      string
		Reminders string
	}

	NATSConfig struct {
		URL     string
		Subject string
	}

	Config struct {
		Env             string
		Debug           bool
		TestMode        bool
		AppName         string
		Build           string
		SecretKey       string
		FrontendBaseURL string
		SendgridAPIKey  string
		RollbarToken    string
		ReminderWindow  time.Duration
		WorkDir         string

		defaultFromEmail string

		Database  DatabaseConfig
		Server    ServerConfig
		Dashboard DashboardConfig
		Cron      CronConfig
		NATS      NATSConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

// NewConfig reads the configuration from the environment (optionally seeded by config/.env.<env>).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Coachdesk")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "k2#d9v!w0$r7m-coachdesk-dev-only-8bq+z1x@4n6h")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("reminders.window", 24*time.Hour)

	v.SetDefault("db.engine", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "coachdesk")
	v.SetDefault("db.user", "coachdesk")
	v.SetDefault("db.password", "coachdesk")
	v.SetDefault("db.adminUser", "postgres")
	v.SetDefault("db.adminPassword", "postgres")
	v.SetDefault("db.disableTLS", true)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("dashboard.horizon", 7*24*time.Hour)
	v.SetDefault("dashboard.pastLimit", 10)
	v.SetDefault("dashboard.feedSize", 10)
	v.SetDefault("dashboard.sessionDuration", time.Hour)
	v.SetDefault("dashboard.sessionTTL", 30*time.Minute)

	v.SetDefault("cron.tick", "@every 1m")
	v.SetDefault("cron.reminders", "*/15 * * * *")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "coachdesk.summary.completed")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		ReminderWindow:   v.GetDuration("reminders.window"),
		WorkDir:          wd,
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Database: DatabaseConfig{
			Engine:        v.GetString("db.engine"),
			Host:          v.GetString("db.host"),
			Port:          v.GetInt("db.port"),
			Name:          v.GetString("db.name"),
			User:          v.GetString("db.user"),
			Password:      v.GetString("db.password"),
			AdminUser:     v.GetString("db.adminUser"),
			AdminPassword: v.GetString("db.adminPassword"),
			DisableTLS:    v.GetBool("db.disableTLS"),
		},
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debugAddress"),
			Host:               v.GetString("server.host"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Dashboard: DashboardConfig{
			Horizon:         v.GetDuration("dashboard.horizon"),
			PastLimit:       v.GetInt("dashboard.pastLimit"),
			FeedSize:        v.GetInt("dashboard.feedSize"),
			SessionDuration: v.GetDuration("dashboard.sessionDuration"),
			SessionTTL:      v.GetDuration("dashboard.sessionTTL"),
		},
		Cron: CronConfig{
			Tick:      v.GetString("cron.tick"),
			Reminders: v.GetString("cron.reminders"),
		},
		NATS: NATSConfig{
			URL:     v.GetString("nats.url"),
			Subject: v.GetString("nats.subject"),
		},
	}
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run during tests,
// so walk up until the root is found and fall back to the working directory.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
