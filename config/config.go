package config

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the non-secret settings of the bot. Secrets live in the keybox.
type Config struct {
	Metro    Metro    `mapstructure:"metro"`
	Discord  Discord  `mapstructure:"discord"`
	Telegram Telegram `mapstructure:"telegram"`
	Access   Access   `mapstructure:"access"`
	Log      Log      `mapstructure:"log"`
	Web      Web      `mapstructure:"web"`
	Database Database `mapstructure:"database"`
}

// Metro configures the network status source and the reconciler
type Metro struct {
	APIURL         string `mapstructure:"api_url" default:"https://www.metro.cl/api/estadoRedDetalle.php"`
	PollSeconds    int    `mapstructure:"poll_seconds" default:"60"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" default:"10"`
	// ServiceHours closes every line outside the published operating hours
	ServiceHours bool   `mapstructure:"service_hours" default:"true"`
	Timezone     string `mapstructure:"timezone" default:"America/Santiago"`
	CacheSeconds int    `mapstructure:"cache_seconds" default:"30"`
}

// PollPeriod is the interval between reconciliation sweeps
func (m Metro) PollPeriod() time.Duration {
	return seconds(m.PollSeconds, 60)
}

// Timeout bounds each request to the status API
func (m Metro) Timeout() time.Duration {
	return seconds(m.TimeoutSeconds, 10)
}

// CacheTTL is how long the last fetched status is served to readers
func (m Metro) CacheTTL() time.Duration {
	return seconds(m.CacheSeconds, 30)
}

// Location loads the configured time zone
func (m Metro) Location() (*time.Location, error) {
	return time.LoadLocation(m.Timezone)
}

// Discord configures the Discord bot
type Discord struct {
	Prefix       string `mapstructure:"prefix" default:"m!"`
	AdminChannel string `mapstructure:"admin_channel" default:""`
}

// Telegram configures the Telegram bot
type Telegram struct {
	// AdminUsers is a comma separated list of user IDs
	AdminUsers         string `mapstructure:"admin_users" default:""`
	EditTimeoutSeconds int    `mapstructure:"edit_timeout_seconds" default:"300"`
}

// AdminIDs parses AdminUsers, skipping anything that is not a user ID
func (t Telegram) AdminIDs() []int64 {
	ids := []int64{}
	for _, field := range strings.Split(t.AdminUsers, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// EditTimeout is how long an editing session stays open without input
func (t Telegram) EditTimeout() time.Duration {
	return seconds(t.EditTimeoutSeconds, 300)
}

// Possible accessibility storage backends
const (
	BackendFile  = "file"
	BackendMinio = "minio"
)

// Access configures where accessibility documents are stored
type Access struct {
	Backend  string `mapstructure:"backend" default:"file"`
	Dir      string `mapstructure:"dir" default:"data/accessDetails"`
	Bucket   string `mapstructure:"bucket" default:"metro"`
	Endpoint string `mapstructure:"endpoint" default:"localhost:9000"`
	Prefix   string `mapstructure:"prefix" default:"accessDetails"`
	Secure   bool   `mapstructure:"secure" default:"false"`
}

// IsValidBackend checks if the configured backend is supported
func (a Access) IsValidBackend() bool {
	switch a.Backend {
	case BackendFile, BackendMinio:
		return true
	default:
		return false
	}
}

// Log configures the logger
type Log struct {
	// Level is debug, info, warn or error
	Level string `mapstructure:"level" default:"info"`
	// Format is console or json
	Format string `mapstructure:"format" default:"console"`
}

// Web configures the HTTP status endpoints
type Web struct {
	// Addr is the listen address, empty disables the server
	Addr string `mapstructure:"addr" default:":8089"`
}

// Database configures the connection pool
type Database struct {
	MaxConns int `mapstructure:"max_conns" default:"10"`
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// LoadConfig loads configuration from environment variables and an optional
// .env file in path
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}
	// missing in production
	_ = godotenv.Overload(envPath)

	v := viper.New()
	bindValues(v, Config{}, "")

	// METRO_POLL_SECONDS -> metro.poll_seconds
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// bindValues registers every tagged field with its default so that
// AutomaticEnv picks it up
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
