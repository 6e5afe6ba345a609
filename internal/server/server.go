package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/cache"
	"github.com/vishal-tambi/white-board-collabration-app/internal/collab"
	"github.com/vishal-tambi/white-board-collabration-app/internal/config"
	"github.com/vishal-tambi/white-board-collabration-app/internal/events"
	"github.com/vishal-tambi/white-board-collabration-app/internal/handler"
	"github.com/vishal-tambi/white-board-collabration-app/internal/middleware"
	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/presence"
	"github.com/vishal-tambi/white-board-collabration-app/internal/service"
	"github.com/vishal-tambi/white-board-collabration-app/internal/storage"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

// Deps 서버 외부 의존성. Store 외에는 nil 허용 (해당 기능 비활성화)
type Deps struct {
	Store  store.Store
	Cache  *cache.RedisClient
	Images *storage.ImageStore
	NATS   *events.NATSPublisher
	Logger *zap.Logger
}

// Server Fiber 서버 래퍼
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	log    *zap.Logger
	engine *collab.Engine

	rootHandler     *handler.RootHandler
	healthHandler   *handler.HealthHandler
	roomHandler     *handler.RoomHandler
	snapshotHandler *handler.SnapshotHandler
	whiteboardWS    *handler.WhiteboardWSHandler
}

// EngineOptions 세션 설정을 엔진 옵션으로 변환
func EngineOptions(cfg config.SessionConfig) collab.Options {
	opts := collab.DefaultOptions()
	opts.PersistTimeout = cfg.PersistTimeout
	opts.PersistQueueSize = cfg.PersistQueueSize
	opts.EventRate = cfg.EventRate
	opts.EventBurst = cfg.EventBurst
	opts.CursorRate = cfg.CursorRate
	opts.StrictIdentity = cfg.StrictIdentity
	opts.PersistShapes = cfg.PersistShapes
	opts.DefaultMaxUsers = cfg.DefaultMaxUsers
	return opts
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, deps Deps) *Server {
	zlog := deps.Logger
	if zlog == nil {
		zlog = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "Collaborative Whiteboard",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             20 * 1024 * 1024, // 스냅샷 data URL 용 20MB
		DisableStartupMessage: true,
	})

	// 선택 컴포넌트는 실제 값이 있을 때만 인터페이스로 넘긴다 (typed nil 방지)
	var (
		roomCache collab.RoomCache
		svcCache  service.RoomCache
		images    service.ImageStore
		publisher events.Publisher = events.Noop{}
		probes                     = map[string]handler.Probe{"redis": nil, "storage": nil, "nats": nil}
	)
	if deps.Cache != nil {
		roomCache, svcCache = deps.Cache, deps.Cache
		probes["redis"] = deps.Cache.Health
	}
	if deps.Images != nil {
		images = deps.Images
		probes["storage"] = deps.Images.Health
	}
	if deps.NATS != nil {
		publisher = deps.NATS
		nc := deps.NATS
		probes["nats"] = func(context.Context) error { return nc.Health() }
	}

	registry := presence.NewRegistry()
	engine := collab.NewEngine(collab.Deps{
		Registry:  registry,
		Store:     deps.Store,
		Shapes:    deps.Store,
		Cache:     roomCache,
		Publisher: publisher,
		Logger:    zlog,
	}, EngineOptions(cfg.Session))

	defaults := model.DefaultRoomSettings()
	defaults.MaxUsers = cfg.Session.DefaultMaxUsers

	rooms := service.NewRoomService(deps.Store, deps.Store, registry, svcCache, defaults, zlog)
	snapshots := service.NewSnapshotService(deps.Store, images, publisher, zlog)

	return &Server{
		app:             app,
		cfg:             cfg,
		log:             zlog.With(zap.String("component", "server")),
		engine:          engine,
		rootHandler:     handler.NewRootHandler(engine),
		healthHandler:   handler.NewHealthHandler(deps.Store.Ping, probes),
		roomHandler:     handler.NewRoomHandler(rooms, zlog),
		snapshotHandler: handler.NewSnapshotHandler(snapshots, zlog),
		whiteboardWS:    handler.NewWhiteboardWSHandler(engine, cfg.WebSocket, zlog),
	}
}

// App Fiber 앱 (테스트용)
func (s *Server) App() *fiber.App { return s.app }

// Engine 협업 엔진
func (s *Server) Engine() *collab.Engine { return s.engine }

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	s.app.Get("/", s.rootHandler.Index)

	// 헬스체크 엔드포인트
	s.app.Get("/api/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (룸 생성 남용 방지)
	createLimiter := limiter.New(limiter.Config{
		Max:        s.cfg.Server.RoomCreateLimit,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // IP 기반 제한
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Room 라우트 그룹
	roomGroup := s.app.Group("/api/rooms")
	roomGroup.Post("", createLimiter, s.roomHandler.CreateRoom)
	roomGroup.Get("/:roomId", middleware.RequireRoomID(), s.roomHandler.GetRoom)
	roomGroup.Get("/:roomId/strokes", middleware.RequireRoomID(), s.roomHandler.GetStrokes)
	roomGroup.Delete("/:roomId/strokes", middleware.RequireRoomID(), s.roomHandler.ClearStrokes)

	// Snapshot 라우트 그룹 (/single/:id 를 /:roomId 보다 먼저 등록)
	snapshotGroup := s.app.Group("/api/snapshots")
	snapshotGroup.Post("", s.snapshotHandler.CreateSnapshot)
	snapshotGroup.Get("/single/:id", s.snapshotHandler.GetSnapshot)
	snapshotGroup.Get("/:roomId", middleware.RequireRoomID(), s.snapshotHandler.ListSnapshots)
	snapshotGroup.Delete("/:id", s.snapshotHandler.DeleteSnapshot)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 화이트보드 엔드포인트
	s.app.Get("/ws", websocket.New(s.whiteboardWS.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.log.Info("shutting down server")
		if err := s.Shutdown(); err != nil {
			s.log.Error("server shutdown error", zap.Error(err))
		}
	}()

	s.log.Info("whiteboard server starting",
		zap.String("addr", s.cfg.Server.Port),
		zap.String("ws", "/ws"),
	)
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료: 모든 WebSocket 클라이언트를 닫고 저장 큐를 비운 뒤 HTTP 서버를 내린다.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	engineErr := s.engine.Shutdown(ctx)
	if engineErr != nil {
		s.log.Warn("engine shutdown incomplete", zap.Error(engineErr))
	}
	return errors.Join(engineErr, s.app.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout))
}
