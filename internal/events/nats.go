// Package events 룸 활동을 외부 소비자를 위해 NATS로 발행
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Kind 활동 종류
type Kind string

const (
	KindUserJoined      Kind = "user-joined"
	KindUserLeft        Kind = "user-left"
	KindStrokeStarted   Kind = "stroke-started"
	KindStrokeDeleted   Kind = "stroke-deleted"
	KindCanvasCleared   Kind = "canvas-cleared"
	KindSnapshotCreated Kind = "snapshot-created"
)

// Activity 룸 활동 메시지
type Activity struct {
	Kind     Kind   `json:"kind"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId,omitempty"`
	At       int64  `json:"at"`
	StrokeID string `json:"strokeId,omitempty"`
}

// Publisher 발행 후 잊는 방식. 구현은 블로킹하면 안 된다.
type Publisher interface {
	Publish(a Activity)
	Close() error
}

// Noop NATS 가 설정되지 않았을 때
type Noop struct{}

func (Noop) Publish(Activity) {}
func (Noop) Close() error     { return nil }

// Config NATS 연결 설정
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NATSPublisher <prefix>.<roomId>.<kind> 주제로 활동 발행
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    *zap.Logger
}

// NewNATSPublisher 연결
func NewNATSPublisher(cfg Config, log *zap.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "whiteboard.activity"
	}

	log = log.With(zap.String("component", "events"))
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	log.Info("nats connected", zap.String("url", nc.ConnectedUrl()))
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix, log: log}, nil
}

// Subject 발행 subject
func Subject(prefix, roomID string, kind Kind) string {
	// '.' 과 와일드카드는 subject 토큰을 깨뜨린다
	room := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(roomID)
	return prefix + "." + room + "." + string(kind)
}

func (p *NATSPublisher) Publish(a Activity) {
	if a.At == 0 {
		a.At = time.Now().UnixMilli()
	}
	data, err := json.Marshal(a)
	if err != nil {
		p.log.Warn("marshal activity", zap.Error(err))
		return
	}
	// nc.Publish 는 버퍼에 쓰고 바로 반환한다
	if err := p.nc.Publish(Subject(p.prefix, a.RoomID, a.Kind), data); err != nil {
		p.log.Debug("publish activity failed", zap.String("kind", string(a.Kind)), zap.Error(err))
	}
}

// Health 연결 상태
func (p *NATSPublisher) Health() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats status %s", p.nc.Status())
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
