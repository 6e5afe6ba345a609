package model

// Tool 드로잉 도구 종류
type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
	ToolSelect Tool = "select"
)

// String 메서드
func (t Tool) String() string {
	return string(t)
}

// IsValid 허용된 도구인지 확인
func (t Tool) IsValid() bool {
	switch t {
	case ToolPen, ToolEraser, ToolSelect:
		return true
	}
	return false
}

// ShapeKind 도형 종류
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapeArrow     ShapeKind = "arrow"
	ShapeLine      ShapeKind = "line"
)

func (k ShapeKind) String() string {
	return string(k)
}

// IsValid 허용된 도형인지 확인
func (k ShapeKind) IsValid() bool {
	switch k {
	case ShapeRectangle, ShapeCircle, ShapeArrow, ShapeLine:
		return true
	}
	return false
}

// 룸/획 기본값
const (
	DefaultMaxUsers    = 50
	DefaultIsPrivate   = false
	DefaultStrokeColor = "#000000"
	DefaultStrokeSize  = 8
	DefaultTool        = ToolPen
)

// DefaultRoomSettings 새 룸 생성 시 기본 설정
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		MaxUsers:  DefaultMaxUsers,
		IsPrivate: DefaultIsPrivate,
	}
}
