package collab

import "errors"

var (
	ErrRoomFull        = errors.New("room is full")
	ErrQueueFull       = errors.New("persistence queue full")
	ErrPersisterClosed = errors.New("persister closed")
)

// 클라이언트에 보내는 에러 메시지
const (
	msgJoinFailed       = "Failed to join room"
	msgRoomFull         = "Room is full"
	msgNotInRoom        = "Not in room"
	msgNotAuthenticated = "Not authenticated"
	msgRateLimited      = "Rate limit exceeded"
	msgUnknownEvent     = "Unknown event"
)
