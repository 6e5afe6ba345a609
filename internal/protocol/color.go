package protocol

import (
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

const goldenRatio = 0.618033988749895

// ColorPicker 황금비로 색상환을 돌며 서로 잘 구분되는 커서 색을 배정한다
type ColorPicker struct {
	mu sync.Mutex
	n  int
}

func NewColorPicker() *ColorPicker {
	return &ColorPicker{}
}

// Next 다음 색을 #rrggbb로 반환
func (p *ColorPicker) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	hue := float64(p.n) * goldenRatio
	hue -= float64(int(hue))
	p.n++

	return colorful.Hsl(hue*360, 0.85, 0.55).Hex()
}
