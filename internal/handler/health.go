package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const probeTimeout = 2 * time.Second

// Probe 컴포넌트 상태 확인 함수
type Probe func(ctx context.Context) error

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	store    Probe
	optional map[string]Probe // nil 이면 미설정
	started  time.Time
}

// NewHealthHandler HealthHandler 생성
// store 는 필수 의존성, optional 은 redis/storage/nats 처럼 없어도 동작하는 컴포넌트
func NewHealthHandler(store Probe, optional map[string]Probe) *HealthHandler {
	return &HealthHandler{store: store, optional: optional, started: time.Now()}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Uptime    float64                   `json:"uptime"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

func runProbe(ctx context.Context, probe Probe, failed string) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	if err := probe(ctx); err != nil {
		return ComponentCheck{Status: failed, Error: err.Error()}
	}
	return ComponentCheck{Status: "healthy", Latency: time.Since(start).String()}
}

// Check 전체 상태 확인 (저장소 + 선택 컴포넌트)
// GET /api/health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx := c.UserContext()
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Seconds(),
		Checks:    make(map[string]ComponentCheck),
	}

	// 1. 저장소 체크 (실패 시 unhealthy)
	response.Checks["store"] = runProbe(ctx, h.store, "unhealthy")
	if response.Checks["store"].Status != "healthy" {
		response.Status = "unhealthy"
	}

	// 2. 선택 컴포넌트 (실패해도 degraded)
	for name, probe := range h.optional {
		if probe == nil {
			response.Checks[name] = ComponentCheck{Status: "not_configured"}
			continue
		}
		response.Checks[name] = runProbe(ctx, probe, "degraded")
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Liveness K8s liveness probe용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness probe용 (저장소 연결 체크)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
	defer cancel()

	if err := h.store(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}
