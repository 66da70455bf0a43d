package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Vimeo    VimeoConfig
	CRM      CRMConfig
	Recorder RecorderConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// VimeoConfig holds video host credentials and placement.
type VimeoConfig struct {
	APIURL   string
	Token    string
	UserID   string
	FolderID string
}

// CRMConfig holds LeadConnector credentials and routing.
type CRMConfig struct {
	APIURL        string
	APIVersion    string
	APIKey        string
	LocationID    string            // default routing identifier
	CustomFieldID string            // contact field receiving the video link; empty disables the update
	HostLocations map[string]string // referer host -> location id
}

// RecorderConfig holds settings for the terminal recorder client.
type RecorderConfig struct {
	ServerURL   string
	Display     string // x11grab input, e.g. :0.0
	Microphone  string // pulse source
	SystemAudio string // pulse monitor source; empty records no system audio
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "3000"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 60),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Vimeo: VimeoConfig{
			APIURL:   getEnv("VIMEO_API_URL", "https://api.vimeo.com"),
			Token:    getEnv("VIMEO_TOKEN", ""),
			UserID:   getEnv("VIMEO_USER_ID", ""),
			FolderID: getEnv("VIMEO_FOLDER_ID", ""),
		},
		CRM: CRMConfig{
			APIURL:        getEnv("GHL_API_URL", "https://services.leadconnectorhq.com"),
			APIVersion:    getEnv("GHL_API_VERSION", "2021-07-28"),
			APIKey:        getEnv("GHL_API_KEY", ""),
			LocationID:    strings.TrimSpace(getEnv("GHL_LOCATION_ID", "")),
			CustomFieldID: getEnv("GHL_CUSTOM_FIELD_ID", ""),
			HostLocations: parseKVMap(getEnv("GHL_HOST_LOCATIONS", "")),
		},
		Recorder: RecorderConfig{
			ServerURL:   getEnv("RECORDER_SERVER_URL", "http://localhost:3000"),
			Display:     getEnv("RECORDER_DISPLAY", ":0.0"),
			Microphone:  getEnv("RECORDER_MICROPHONE", "default"),
			SystemAudio: getEnv("RECORDER_SYSTEM_AUDIO", ""),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// parseKVMap parses "k1=v1,k2=v2". Keys are lower-cased.
func parseKVMap(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(parts[0]))
		v := strings.TrimSpace(parts[1])
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
