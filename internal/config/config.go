package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	NATS      NATSConfig
	Session   SessionConfig
	Log       LogConfig
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RoomCreateLimit int
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PongWait        time.Duration
	MaxMessageSize  int
	SendQueueSize   int
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// DatabaseConfig 저장소 설정
type DatabaseConfig struct {
	Driver string // postgres | mongo | memory

	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	TimeZone string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	ConnectAttempts int
	ConnectDelay    time.Duration

	MongoURI      string
	MongoDatabase string
	MongoPoolSize int
}

// DSN PostgreSQL 접속 문자열
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.TimeZone,
	)
}

// RedisConfig Redis 설정
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	RoomTTL  time.Duration
}

// StorageConfig MinIO(S3 호환) 스냅샷 이미지 저장소 설정
type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PresignExpiry time.Duration
}

// Enabled 엔드포인트가 설정된 경우에만 사용
func (c StorageConfig) Enabled() bool {
	return c.Endpoint != ""
}

// NATSConfig 활동 피드 설정
type NATSConfig struct {
	URL           string
	ClientName    string
	SubjectPrefix string
}

// Enabled URL 이 설정된 경우에만 사용
func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

// SessionConfig 협업 세션 엔진 설정
type SessionConfig struct {
	PersistTimeout   time.Duration
	PersistQueueSize int
	EventRate        float64
	EventBurst       int
	CursorRate       float64
	StrictIdentity   bool
	PersistShapes    bool
	DefaultMaxUsers  int
}

// LogConfig 로깅 설정
type LogConfig struct {
	Level       string
	Development bool
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getDuration("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			RoomCreateLimit: getInt("ROOM_CREATE_LIMIT", 20),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			PingInterval:    getDuration("WS_PING_INTERVAL", 25*time.Second),
			PongWait:        getDuration("WS_PONG_WAIT", 60*time.Second),
			MaxMessageSize:  getInt("WS_MAX_MESSAGE_SIZE", 1<<20),
			SendQueueSize:   getInt("WS_SEND_QUEUE_SIZE", 256),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "whiteboard"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			TimeZone:        getEnv("DB_TIMEZONE", "UTC"),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnectAttempts: getInt("DB_CONNECT_ATTEMPTS", 5),
			ConnectDelay:    getDuration("DB_CONNECT_DELAY", 5*time.Second),
			MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:   getEnv("MONGO_DATABASE", "whiteboard"),
			MongoPoolSize:   getInt("MONGO_POOL_SIZE", 100),
		},
		Redis: RedisConfig{
			Enabled:  getBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			RoomTTL:  getDuration("REDIS_ROOM_TTL", 24*time.Hour),
		},
		Storage: StorageConfig{
			Endpoint:      getEnv("MINIO_ENDPOINT", ""),
			AccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:     getEnv("MINIO_SECRET_KEY", ""),
			Bucket:        getEnv("MINIO_BUCKET", "whiteboard-snapshots"),
			Region:        getEnv("MINIO_REGION", "us-east-1"),
			UseSSL:        getBool("MINIO_USE_SSL", false),
			PresignExpiry: getDuration("MINIO_PRESIGN_EXPIRY", 15*time.Minute),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			ClientName:    getEnv("NATS_CLIENT_NAME", "whiteboard-server"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "whiteboard.activity"),
		},
		Session: SessionConfig{
			PersistTimeout:   getDuration("SESSION_PERSIST_TIMEOUT", 2*time.Second),
			PersistQueueSize: getInt("SESSION_PERSIST_QUEUE_SIZE", 1024),
			EventRate:        getFloat("SESSION_EVENT_RATE", 200),
			EventBurst:       getInt("SESSION_EVENT_BURST", 400),
			CursorRate:       getFloat("SESSION_CURSOR_RATE", 30),
			StrictIdentity:   getBool("SESSION_STRICT_IDENTITY", false),
			PersistShapes:    getBool("SESSION_PERSIST_SHAPES", false),
			DefaultMaxUsers:  getInt("SESSION_DEFAULT_MAX_USERS", 50),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getBool("LOG_DEV", false),
		},
	}
}

// Validate 설정 값 검증
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Database.Driver))
	}
	if c.Database.Driver != "memory" && c.Database.ConnectAttempts <= 0 {
		errs = append(errs, errors.New("DB_CONNECT_ATTEMPTS must be positive"))
	}

	positiveDurations := map[string]time.Duration{
		"SESSION_PERSIST_TIMEOUT": c.Session.PersistTimeout,
		"WS_WRITE_TIMEOUT":        c.WebSocket.WriteTimeout,
		"WS_PING_INTERVAL":        c.WebSocket.PingInterval,
		"WS_PONG_WAIT":            c.WebSocket.PongWait,
		"SHUTDOWN_TIMEOUT":        c.Server.ShutdownTimeout,
	}
	for key, d := range positiveDurations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.WebSocket.PongWait > 0 && c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		errs = append(errs, errors.New("WS_PING_INTERVAL must be shorter than WS_PONG_WAIT"))
	}

	positiveInts := map[string]int{
		"SESSION_PERSIST_QUEUE_SIZE": c.Session.PersistQueueSize,
		"SESSION_EVENT_BURST":        c.Session.EventBurst,
		"SESSION_DEFAULT_MAX_USERS":  c.Session.DefaultMaxUsers,
		"WS_MAX_MESSAGE_SIZE":        c.WebSocket.MaxMessageSize,
		"WS_SEND_QUEUE_SIZE":         c.WebSocket.SendQueueSize,
	}
	for key, n := range positiveInts {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.Session.EventRate <= 0 || c.Session.CursorRate <= 0 {
		errs = append(errs, errors.New("SESSION_EVENT_RATE and SESSION_CURSOR_RATE must be positive"))
	}

	return errors.Join(errs...)
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getFloat 실수형 환경 변수 조회
func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getBool 불리언 환경 변수 조회
func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
