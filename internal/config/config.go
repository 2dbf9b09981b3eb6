package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort     string
	DatabaseURL  string
	LogLevel     string
	JWTSecret    string
	GeminiAPIKey string
	GeminiModel  string

	ElevenLabsKey     string
	ElevenLabsVoiceID string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
	SignedURLTTL       time.Duration

	// Exact phrases (case-insensitive) that end the interview immediately,
	// bypassing the LLM. Operational/testing escape hatch.
	EndCommands []string

	TimerDurationMinutes int
	PersistRetries       int
}

func Load() Config {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		DatabaseURL:  getEnv("DATABASE_URL", "interviews.db"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),

		ElevenLabsKey:     getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "interview-audio"),
		SignedURLTTL:       time.Duration(getEnvAsInt("SIGNED_URL_TTL_SECONDS", 3600)) * time.Second,

		EndCommands: splitCommands(getEnv("INTERVIEW_END_COMMANDS", "end interview")),

		TimerDurationMinutes: getEnvAsInt("INTERVIEW_TIMER_MINUTES", 30),
		PersistRetries:       getEnvAsInt("PERSIST_RETRIES", 3),
	}

	if cfg.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	if cfg.ElevenLabsKey == "" {
		log.Println("Warning: ELEVENLABS_API_KEY not set - interview audio will be disabled")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		log.Println("Warning: SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - audio storage will be disabled")
	}

	return cfg
}

func splitCommands(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
