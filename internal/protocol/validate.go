package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

const (
	maxNameRunes = 50
	defaultName  = "Anonymous"
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidRoomID 허용되는 룸 ID인지 확인
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// Validator 디코딩된 이벤트를 스키마로 검증하고 다른 클라이언트에 전달되는
// 자유 텍스트 필드를 정리한다
type Validator struct {
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	colors    *ColorPicker
}

// NewValidator 룸 ID 규칙을 등록한 Validator 생성
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return ValidRoomID(fl.Field().String())
	})

	return &Validator{
		validate:  v,
		sanitizer: bluemonday.StrictPolicy(),
		colors:    NewColorPicker(),
	}
}

// Validate ev 검증 및 사용자 노출 문자열 정규화
func (v *Validator) Validate(ev Event) error {
	if err := v.validate.Struct(ev); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return formatValidationError(verrs[0])
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch e := ev.(type) {
	case *JoinRoom:
		e.User.Name = v.SanitizeName(e.User.Name)
		e.User.Color = v.sanitizeColor(e.User.Color)
		if e.User.Color == "" {
			e.User.Color = v.colors.Next()
		}
	case *StrokeStart:
		e.Stroke.Color = v.sanitizeColor(e.Stroke.Color)
	case *ShapeStart:
		e.Shape.Color = v.sanitizeColor(e.Shape.Color)
		e.Shape.FillColor = v.sanitizeColor(e.Shape.FillColor)
	}
	return nil
}

// SanitizeName 표시 이름에서 마크업 제거 후 공백 정리 및 길이 제한
func (v *Validator) SanitizeName(name string) string {
	name = strings.TrimSpace(v.sanitizer.Sanitize(name))
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	if name == "" {
		return defaultName
	}
	return name
}

func (v *Validator) sanitizeColor(color string) string {
	return strings.TrimSpace(v.sanitizer.Sanitize(color))
}

func formatValidationError(fe validator.FieldError) error {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", ErrInvalidPayload, field)
	case "roomid":
		return fmt.Errorf("%w: %s must be 1-64 characters of A-Z, a-z, 0-9, _ or -", ErrInvalidPayload, field)
	case "oneof":
		return fmt.Errorf("%w: %s must be one of [%s]", ErrInvalidPayload, field, fe.Param())
	case "max":
		return fmt.Errorf("%w: %s exceeds maximum %s", ErrInvalidPayload, field, fe.Param())
	case "gte", "lte":
		return fmt.Errorf("%w: %s is out of range", ErrInvalidPayload, field)
	default:
		return fmt.Errorf("%w: %s failed %s", ErrInvalidPayload, field, fe.Tag())
	}
}
