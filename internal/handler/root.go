package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vishal-tambi/white-board-collabration-app/internal/collab"
)

// Version 서비스 버전
const Version = "1.0.0"

// RootHandler 서비스 안내 핸들러
type RootHandler struct {
	engine *collab.Engine
}

// NewRootHandler RootHandler 생성
func NewRootHandler(engine *collab.Engine) *RootHandler {
	return &RootHandler{engine: engine}
}

// Index 서비스 정보와 엔드포인트 목록
// GET /
func (h *RootHandler) Index(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    "Collaborative Whiteboard API",
		"version": Version,
		"status":  "running",
		"stats":   h.engine.Stats(),
		"endpoints": fiber.Map{
			"health":    "/api/health",
			"rooms":     "/api/rooms",
			"snapshots": "/api/snapshots",
			"websocket": "/ws",
		},
	})
}
