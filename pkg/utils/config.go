package utils

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	HTTPAddr      string
	EventsTCPAddr string
	LogLevel      string
	Development   bool

	// requests per second per client on the compose route
	ComposeRPS   int
	ComposeBurst int
}

type ComposeConfig struct {
	AssetBaseURL   string
	GatewayBaseURL string
	CanvasWidth    int
	CanvasHeight   int
	TempDir        string
	FetchTimeout   time.Duration
	FetchParallel  int
	PublishTimeout time.Duration
}

type PinningConfig struct {
	// "pinata" or "local"
	Provider  string
	APIURL    string
	JWT       string
	APIKey    string
	SecretKey string
	LocalDir  string
}

type Config struct {
	Server  ServerConfig
	Compose ComposeConfig
	Pinning PinningConfig
}

// LoadConfig reads TRAITFORGE_* variables, after loading a .env file from
// the working directory when one exists.
func LoadConfig() Config {
	// missing .env is fine; real env always wins
	_ = godotenv.Load()

	provider := strings.ToLower(envString("TRAITFORGE_PINNING_PROVIDER", "local"))

	return Config{
		Server: ServerConfig{
			HTTPAddr:      envString("TRAITFORGE_HTTP_ADDR", ":8080"),
			EventsTCPAddr: envString("TRAITFORGE_EVENTS_TCP_ADDR", ":7070"),
			LogLevel:      envString("TRAITFORGE_LOG_LEVEL", "info"),
			Development:   envBool("TRAITFORGE_DEV", false),
			ComposeRPS:    envInt("TRAITFORGE_COMPOSE_RPS", 2),
			ComposeBurst:  envInt("TRAITFORGE_COMPOSE_BURST", 4),
		},
		Compose: ComposeConfig{
			// dev default points at cmd/asset-server
			AssetBaseURL:   strings.TrimRight(envString("TRAITFORGE_ASSET_BASE_URL", "http://localhost:9000/traits"), "/"),
			GatewayBaseURL: envString("TRAITFORGE_GATEWAY_BASE_URL", defaultGateway(provider)),
			CanvasWidth:    envInt("TRAITFORGE_CANVAS_WIDTH", 1200),
			CanvasHeight:   envInt("TRAITFORGE_CANVAS_HEIGHT", 1200),
			TempDir:        envString("TRAITFORGE_TEMP_DIR", os.TempDir()),
			FetchTimeout:   envDuration("TRAITFORGE_FETCH_TIMEOUT", 15*time.Second),
			FetchParallel:  envInt("TRAITFORGE_FETCH_PARALLEL", 4),
			PublishTimeout: envDuration("TRAITFORGE_PUBLISH_TIMEOUT", 60*time.Second),
		},
		Pinning: PinningConfig{
			Provider:  provider,
			APIURL:    envString("TRAITFORGE_PINATA_API_URL", "https://api.pinata.cloud"),
			JWT:       os.Getenv("TRAITFORGE_PINATA_JWT"),
			APIKey:    os.Getenv("TRAITFORGE_PINATA_API_KEY"),
			SecretKey: os.Getenv("TRAITFORGE_PINATA_SECRET_KEY"),
			LocalDir:  envString("TRAITFORGE_LOCAL_PIN_DIR", defaultPinDir()),
		},
	}
}

// local pins are only reachable through the api-server's /ipfs/:cid route
func defaultGateway(provider string) string {
	if provider == "local" {
		return "http://localhost:8080/ipfs/"
	}
	return "https://gateway.pinata.cloud/ipfs/"
}

func defaultPinDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return home + "/.traitforge/ipfs"
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// if parse fails, fall back to the default
func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
