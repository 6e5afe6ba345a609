package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/middleware"
	"github.com/vishal-tambi/white-board-collabration-app/internal/protocol"
	"github.com/vishal-tambi/white-board-collabration-app/internal/service"
)

// RoomHandler 룸 REST 핸들러
type RoomHandler struct {
	rooms *service.RoomService
	log   *zap.Logger
}

// NewRoomHandler RoomHandler 생성
func NewRoomHandler(rooms *service.RoomService, log *zap.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, log: log.With(zap.String("component", "http"))}
}

// CreateRoom 새 룸 생성
// POST /api/rooms
func (h *RoomHandler) CreateRoom(c *fiber.Ctx) error {
	room, err := h.rooms.CreateRoom(c.UserContext())
	if err != nil {
		h.log.Error("failed to create room", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create room",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"roomId":    room.RoomID,
		"createdAt": room.CreatedAt,
		"settings":  room.Settings,
	})
}

// GetRoom 룸 조회 (없으면 자동 생성)
// GET /api/rooms/:roomId
func (h *RoomHandler) GetRoom(c *fiber.Ctx) error {
	roomID := middleware.RoomID(c)

	info, err := h.rooms.GetRoom(c.UserContext(), roomID)
	if err != nil {
		h.log.Error("failed to fetch room", zap.String("roomId", roomID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch room",
		})
	}

	resp := fiber.Map{
		"roomId":      info.Room.RoomID,
		"createdAt":   info.Room.CreatedAt,
		"settings":    info.Room.Settings,
		"activeUsers": info.ActiveUsers,
	}
	if info.IsNew {
		resp["isNew"] = true
	} else {
		resp["updatedAt"] = info.Room.UpdatedAt
	}
	return c.JSON(resp)
}

// GetStrokes 룸의 획 목록
// GET /api/rooms/:roomId/strokes
func (h *RoomHandler) GetStrokes(c *fiber.Ctx) error {
	roomID := middleware.RoomID(c)

	strokes, err := h.rooms.ListStrokes(c.UserContext(), roomID)
	if err != nil {
		h.log.Error("failed to fetch strokes", zap.String("roomId", roomID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch strokes",
		})
	}

	out := make([]protocol.StrokeData, len(strokes))
	for i, s := range strokes {
		out[i] = protocol.StrokeFromModel(s)
	}
	return c.JSON(fiber.Map{"strokes": out})
}

// ClearStrokes 룸의 획 전체 삭제
// DELETE /api/rooms/:roomId/strokes
func (h *RoomHandler) ClearStrokes(c *fiber.Ctx) error {
	roomID := middleware.RoomID(c)

	if _, err := h.rooms.ClearStrokes(c.UserContext(), roomID); err != nil {
		h.log.Error("failed to clear strokes", zap.String("roomId", roomID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear strokes",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "All strokes cleared",
	})
}
