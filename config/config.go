package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	JwtSecret     string
	Issuer        string
	ServerPort    string
	CorsOrigins   []string
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DbHost        string
	DbPort        string
	DbUser        string
	DbPassword    string
	DbName        string
	GpuSeedFile   string
)

func LoadConfig() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using environment variables")
	}

	JwtSecret = getEnv("JWT_SECRET", "defaultsecret")
	Issuer = getEnv("ISSUER", "gpulab")
	ServerPort = getEnv("SERVER_PORT", "8080")
	CorsOrigins = strings.Split(getEnv("CORS_ORIGINS", "http://localhost:5173"), ",")

	StoreBackend = getEnv("STORE_BACKEND", "memory")
	RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	RedisPassword = getEnv("REDIS_PASSWORD", "")
	RedisDB, _ = strconv.Atoi(getEnv("REDIS_DB", "0"))

	DbHost = getEnv("DB_HOST", "localhost")
	DbPort = getEnv("DB_PORT", "5432")
	DbUser = getEnv("DB_USER", "postgres")
	DbPassword = getEnv("DB_PASSWORD", "password")
	DbName = getEnv("DB_NAME", "gpulab")

	GpuSeedFile = getEnv("GPU_SEED_FILE", "")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
