package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vishal-tambi/white-board-collabration-app/internal/protocol"
)

// RoomIDKey Locals 에 저장되는 검증된 룸 ID 키
const RoomIDKey = "roomId"

// RequireRoomID :roomId 경로 파라미터 검증 (1-64자, A-Z a-z 0-9 _ -)
func RequireRoomID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		roomID := c.Params("roomId")
		if !protocol.ValidRoomID(roomID) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid room ID",
			})
		}

		c.Locals(RoomIDKey, roomID)
		return c.Next()
	}
}

// RoomID 검증된 룸 ID 조회
func RoomID(c *fiber.Ctx) string {
	id, _ := c.Locals(RoomIDKey).(string)
	return id
}
