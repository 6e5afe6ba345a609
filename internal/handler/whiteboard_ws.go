package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/collab"
	"github.com/vishal-tambi/white-board-collabration-app/internal/config"
)

// WhiteboardWSHandler 화이트보드 WebSocket 핸들러
// 프레임 송수신만 담당하고 이벤트 처리는 collab.Engine 에 위임한다.
type WhiteboardWSHandler struct {
	engine *collab.Engine
	cfg    config.WebSocketConfig
	log    *zap.Logger
}

// NewWhiteboardWSHandler WhiteboardWSHandler 생성
func NewWhiteboardWSHandler(engine *collab.Engine, cfg config.WebSocketConfig, log *zap.Logger) *WhiteboardWSHandler {
	return &WhiteboardWSHandler{
		engine: engine,
		cfg:    cfg,
		log:    log.With(zap.String("component", "ws")),
	}
}

// wsConn collab.Conn 구현. 쓰기는 전용 writer 고루틴에서만 수행한다.
type wsConn struct {
	c       *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
	log     *zap.Logger
}

// Send 송신 큐에 넣는다. 큐가 가득 차면 느린 클라이언트로 보고 연결을 끊는다.
func (w *wsConn) Send(data []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}

	select {
	case w.send <- data:
		return true
	default:
		w.log.Warn("send queue full, closing slow client")
		_ = w.Close()
		return false
	}
}

func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.c.Close()
	})
	return err
}

// writeLoop 송신 큐 전송 + 주기적 ping
func (w *wsConn) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case data := <-w.send:
			if err := w.c.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
				w.log.Debug("failed to set write deadline", zap.Error(err))
			}
			if err := w.c.WriteMessage(websocket.TextMessage, data); err != nil {
				w.log.Debug("write failed", zap.Error(err))
				_ = w.Close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(w.timeout)
			if err := w.c.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				w.log.Debug("ping failed", zap.Error(err))
				_ = w.Close()
				return
			}
		}
	}
}

// HandleWebSocket 연결 하나의 수명 주기 처리
func (h *WhiteboardWSHandler) HandleWebSocket(c *websocket.Conn) {
	conn := &wsConn{
		c:       c,
		send:    make(chan []byte, h.cfg.SendQueueSize),
		done:    make(chan struct{}),
		timeout: h.cfg.WriteTimeout,
		log:     h.log,
	}
	peer := h.engine.Connect(conn)
	conn.log = h.log.With(zap.String("sessionId", peer.ID()))

	ctx, cancel := context.WithCancel(context.Background())

	// 연결 해제 시 정리 (암묵적 leave + 저장 큐 비우기)
	defer func() {
		cancel()
		_ = conn.Close()
		peer.Close()
	}()

	c.SetReadLimit(int64(h.cfg.MaxMessageSize))
	_ = c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	go conn.writeLoop(h.cfg.PingInterval)

	conn.log.Info("whiteboard client connected", zap.String("remote", c.RemoteAddr().String()))

	// 메시지 수신 루프
	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				conn.log.Debug("read error", zap.Error(err))
			}
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		_ = c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		peer.HandleMessage(ctx, msg)
	}

	conn.log.Info("whiteboard client disconnected")
}
