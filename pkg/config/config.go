package config

import (
	"time"
)

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"text" validate:"oneof=text json"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[unitconv]"`
}

// Exchange configures the pricing source. The credential itself is read from
// the variable named by CredentialEnv on every request.
type Exchange struct {
	Provider      string        `envconfig:"PROVIDER" default:"openexchangerates" validate:"oneof=openexchangerates static"`
	APIURL        string        `envconfig:"API_URL" default:"https://openexchangerates.org/api/latest.json" validate:"omitempty,url"`
	CredentialEnv string        `envconfig:"CREDENTIAL_ENV" default:"OPENEXCHANGERATES_APP_ID" validate:"required"`
	HTTPTimeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"0s" validate:"gte=0"`
}

type Cache struct {
	Expiration      time.Duration `envconfig:"EXPIRATION" default:"168h" validate:"gt=0"`
	StrictTimestamp bool          `envconfig:"STRICT_TIMESTAMP" default:"false"`
	AutoRefresh     bool          `envconfig:"AUTO_REFRESH" default:"false"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"1h" validate:"gt=0"`
}

type Snapshot struct {
	Driver string `envconfig:"DRIVER" default:"sqlite" validate:"oneof=none memory sqlite postgres redis"`
	Path   string `envconfig:"SQLITE_PATH" default:"rates.db"`
	DSN    string `envconfig:"DSN"`
}

type Redis struct {
	URL       string `envconfig:"URL" default:"redis://localhost:6379/0"`
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"unitconv:"`
}

type EventBus struct {
	Driver      string `envconfig:"DRIVER" default:"memory" validate:"oneof=memory kafka redis"`
	RedisStream string `envconfig:"REDIS_STREAM" default:"unitconv:events"`
}

type Kafka struct {
	Brokers string `envconfig:"BROKERS"`
	Topic   string `envconfig:"TOPIC" default:"unitconv.rates.refreshed"`
	GroupID string `envconfig:"GROUP_ID"`
}

type Server struct {
	Host string `envconfig:"HOST" default:"localhost"`
	Port int    `envconfig:"PORT" default:"3000" validate:"gt=0,lt=65536"`
}

type RateLimit struct {
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"100" validate:"gt=0"`
	Window      time.Duration `envconfig:"WINDOW" default:"1m" validate:"gt=0"`
}

type App struct {
	Env       string    `envconfig:"APP_ENV" default:"development"`
	Log       Log       `envconfig:"LOG"`
	Exchange  Exchange  `envconfig:"EXCHANGE_RATE"`
	Cache     Cache     `envconfig:"EXCHANGE_RATE_CACHE"`
	Snapshot  Snapshot  `envconfig:"SNAPSHOT"`
	Redis     Redis     `envconfig:"REDIS"`
	EventBus  EventBus  `envconfig:"EVENT_BUS"`
	Kafka     Kafka     `envconfig:"KAFKA"`
	Server    Server    `envconfig:"SERVER"`
	RateLimit RateLimit `envconfig:"RATE_LIMIT"`
}

// IsDevelopment reports whether verbose diagnostics should be enabled.
func (a *App) IsDevelopment() bool {
	return a.Env == "development"
}
