package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 存储驱动
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
	DriverMinio  = "minio"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	// 数据库
	StoreDriver string // mysql | memory
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBLogSQL    bool

	// Redis配置，RedisHost 为空时不启用缓存
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// 媒体存储
	MediaDriver    string // minio | memory
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	FFmpegPath     string
	HLSSegmentTime string
	HLSWorkers     int
	MaxUploadMB    int64

	// 发行信息服务，为空时不补全发行日期
	ReleaseAPIURL string

	// 管理员认证
	JWTSecret       string
	JWTTTL          time.Duration
	AdminUsers      map[string]string // 用户名 -> bcrypt hash
	LoginRatePerMin int

	// 日志
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// parseAdminUsers 解析 "name:hash,name2:hash2"，bcrypt hash 本身包含 '$' 但不含 ':' 和 ','
func parseAdminUsers(raw string) map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		name, hash, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || hash == "" {
			continue
		}
		users[name] = hash
	}
	return users
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverMySQL)),
		DBHost:      getEnv("DB_HOST", "127.0.0.1"),
		DBPort:      getEnv("DB_PORT", "3306"),
		DBUser:      getEnv("DB_USER", "root"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      getEnv("DB_NAME", "songcatalog"),
		DBLogSQL:    getEnvBool("DB_LOG_SQL", false),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),

		MediaDriver:    strings.ToLower(getEnv("MEDIA_DRIVER", DriverMinio)),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "songcatalog"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		HLSSegmentTime: getEnv("HLS_SEGMENT_TIME", "10"),
		HLSWorkers:     getEnvInt("HLS_WORKERS", 0),
		MaxUploadMB:    int64(getEnvInt("MAX_UPLOAD_MB", 512)),

		ReleaseAPIURL: getEnv("RELEASE_API_URL", ""),

		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTTTL:          getEnvDuration("JWT_TTL", 12*time.Hour),
		AdminUsers:      parseAdminUsers(os.Getenv("ADMIN_USERS")),
		LoginRatePerMin: getEnvInt("LOGIN_RATE_PER_MIN", 5),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// Validate 检查驱动和服务模式必需的配置
func (c *Config) Validate(serverMode bool) error {
	switch c.StoreDriver {
	case DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.MediaDriver {
	case DriverMinio, DriverMemory:
	default:
		return fmt.Errorf("unknown MEDIA_DRIVER %q", c.MediaDriver)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if serverMode && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to run the server")
	}
	return nil
}

// RedisEnabled 是否配置了 Redis
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}
