package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/middleware"
	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/service"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

// SnapshotHandler 스냅샷 REST 핸들러
type SnapshotHandler struct {
	snapshots *service.SnapshotService
	log       *zap.Logger
}

// NewSnapshotHandler SnapshotHandler 생성
func NewSnapshotHandler(snapshots *service.SnapshotService, log *zap.Logger) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots, log: log.With(zap.String("component", "http"))}
}

// CreateSnapshotRequest 스냅샷 저장 요청
type CreateSnapshotRequest struct {
	RoomID    string                  `json:"roomId"`
	ImageData string                  `json:"imageData"`
	Name      string                  `json:"name"`
	Metadata  *model.SnapshotMetadata `json:"metadata"`
}

// CreateSnapshot 스냅샷 저장
// POST /api/snapshots
func (h *SnapshotHandler) CreateSnapshot(c *fiber.Ctx) error {
	var req CreateSnapshotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	in := service.SnapshotInput{RoomID: req.RoomID, ImageData: req.ImageData, Name: req.Name}
	if req.Metadata != nil {
		in.Metadata = *req.Metadata
	}

	snap, err := h.snapshots.Create(c.UserContext(), in)
	if errors.Is(err, service.ErrMissingSnapshotFields) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing required fields: roomId and imageData",
		})
	}
	if err != nil {
		h.log.Error("failed to save snapshot", zap.String("roomId", req.RoomID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save snapshot",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":        snap.ID,
		"roomId":    snap.RoomID,
		"timestamp": snap.Timestamp,
		"name":      snap.Name,
	})
}

// ListSnapshots 룸의 스냅샷 목록 (최신순)
// GET /api/snapshots/:roomId?limit=20
func (h *SnapshotHandler) ListSnapshots(c *fiber.Ctx) error {
	roomID := middleware.RoomID(c)
	limit := store.ClampLimit(c.QueryInt("limit", store.DefaultSnapshotLimit))

	snaps, err := h.snapshots.List(c.UserContext(), roomID, limit)
	if err != nil {
		h.log.Error("failed to fetch snapshots", zap.String("roomId", roomID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch snapshots",
		})
	}

	return c.JSON(fiber.Map{"snapshots": snaps})
}

// GetSnapshot 단일 스냅샷 조회
// GET /api/snapshots/single/:id
func (h *SnapshotHandler) GetSnapshot(c *fiber.Ctx) error {
	id := c.Params("id")

	snap, err := h.snapshots.Get(c.UserContext(), id)
	if errors.Is(err, service.ErrSnapshotNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Snapshot not found",
		})
	}
	if err != nil {
		h.log.Error("failed to fetch snapshot", zap.String("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch snapshot",
		})
	}

	return c.JSON(snap)
}

// DeleteSnapshot 스냅샷 삭제
// DELETE /api/snapshots/:id
func (h *SnapshotHandler) DeleteSnapshot(c *fiber.Ctx) error {
	id := c.Params("id")

	err := h.snapshots.Delete(c.UserContext(), id)
	if errors.Is(err, service.ErrSnapshotNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Snapshot not found",
		})
	}
	if err != nil {
		h.log.Error("failed to delete snapshot", zap.String("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete snapshot",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Snapshot deleted",
	})
}
