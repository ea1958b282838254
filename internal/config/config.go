package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds all application configuration. Values come from the
// environment, with a .env file in the working directory as fallback.
type Config struct {
	ListenAddr string

	// DBPath is the sqlite database file.
	DBPath string

	// AppDir is the directory holding one deployment directory per server.
	AppDir string

	// TemplateDir is the directory holding the app template definitions.
	TemplateDir string

	// Timezone is passed into every rendered template.
	Timezone string

	// DockerHost overrides the engine endpoint. Empty means the client's
	// environment defaults (DOCKER_HOST etc.) apply.
	DockerHost string

	// ProbeImage is the image used for short-lived port probe containers.
	ProbeImage string

	// DefaultHost is recorded on new servers as the host their containers
	// run on.
	DefaultHost string

	LogLevel  string
	JWTSecret string
}

const jwtSecretFile = "data/.sk"

// New loads the configuration. OS environment variables take precedence
// over .env file values.
func New() *Config {
	_ = godotenv.Load(filepath.Join(".", ".env"))

	return &Config{
		ListenAddr:  getEnvOrDefault("LISTEN_ADDR", ":9090"),
		DBPath:      getEnvOrDefault("DB_PATH", "data/containerpanel.db"),
		AppDir:      getEnvOrDefault("APP_DIR", "data/apps"),
		TemplateDir: getEnvOrDefault("TEMPLATE_DIR", "app_templates"),
		Timezone:    getEnvOrDefault("TIMEZONE", "UTC"),
		DockerHost:  os.Getenv("DOCKER_HOST"),
		ProbeImage:  getEnvOrDefault("PROBE_IMAGE", "alpine:3.19"),
		DefaultHost: getEnvOrDefault("SERVER_DEFAULT_HOST", "local"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "INFO"),
		JWTSecret:   loadOrCreateJWTSecret(),
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadOrCreateJWTSecret() string {
	secretBytes, err := os.ReadFile(jwtSecretFile)
	if err != nil {
		if os.IsNotExist(err) {
			newSecret, err := generateRandomString(32)
			if err != nil {
				log.Fatalf("failed to generate JWT secret: %v", err)
			}
			if err := os.MkdirAll(filepath.Dir(jwtSecretFile), 0700); err != nil {
				log.Fatalf("failed to create data directory: %v", err)
			}
			if err := os.WriteFile(jwtSecretFile, []byte(newSecret), 0600); err != nil {
				log.Fatalf("failed to write JWT secret to file: %v", err)
			}
			log.Infof("generated and saved new JWT secret to %s", jwtSecretFile)
			return newSecret
		}
		log.Fatalf("failed to read JWT secret file: %v", err)
	}
	return string(secretBytes)
}

func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
