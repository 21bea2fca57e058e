package settings

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// consts
const (
	Name = "Agrochat"
)

// Config ...
type Config struct {
	Name    string `ignored:"true"`
	Version string `ignored:"true"`
	Debug   bool   `envconfig:"DEBUG"`

	APIURL        string        `envconfig:"API_URL" default:"http://0.0.0.0:8200"`
	ChatTimeout   time.Duration `envconfig:"CHAT_TIMEOUT" default:"120s"`
	BotTimeout    time.Duration `envconfig:"BOT_TIMEOUT" default:"300s"`
	SearchTimeout time.Duration `envconfig:"SEARCH_TIMEOUT" default:"60s"`

	HTTPListen   string `envconfig:"HTTP_LISTEN" default:":10300"`
	AuthUser     string `envconfig:"AUTH_USER"` // basic auth of web pages, disabled when empty
	AuthPass     string `envconfig:"AUTH_PASS"`
	RateLimit    string `envconfig:"RATE_LIMIT" default:"60-M"`
	CookieName   string `envconfig:"Cookie_Name" default:"agsid"`
	CookiePath   string `envconfig:"Cookie_Path" default:"/"`
	CookieDomain string `envconfig:"Cookie_Domain"`
	CookieMaxAge int    `envconfig:"Cookie_MaxAge"`

	RedisURI   string        `envconfig:"redis_uri"` // memory sessions when empty
	SessionTTL time.Duration `envconfig:"SESSION_TTL"`

	BotToken     string        `envconfig:"BOT_TOKEN"`
	BotDebug     bool          `envconfig:"BOT_DEBUG"`
	EditInterval time.Duration `envconfig:"EDIT_INTERVAL" default:"1s"`

	S3Bucket    string `envconfig:"INDEXER_S3_BUCKET" default:"profagro-docs"`
	S3AccessKey string `envconfig:"INDEXER_S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"INDEXER_S3_SECRET_KEY"`
	S3Endpoint  string `envconfig:"INDEXER_S3_ENDPOINT"`
	S3Region    string `envconfig:"INDEXER_S3_REGION" default:"ru-central-1"`

	PresetFile string `envconfig:"preset_file"`
}

var (
	// Current 当前配置
	Current = new(Config)
)

func init() {
	if err := envconfig.Process(Name, Current); err != nil {
		log.Printf("envconfig process fail: %s", err)
	}

	Current.Name = Name
	Current.Version = version
}

// Usage 打印配置帮助
func Usage() error {
	log.Printf("ver: %s", Current.Version)
	return envconfig.Usage(Current.Name, Current)
}

// InDevelop ...
func InDevelop() bool {
	return Current.Debug
}
