package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/geo/r2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/identity"
	"github.com/hyperjump/pdfmark/internal/models"
	"github.com/hyperjump/pdfmark/internal/render"
	"github.com/hyperjump/pdfmark/internal/session"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client message types.
const (
	msgPointerDown = "pointer_down"
	msgPointerMove = "pointer_move"
	msgPointerUp   = "pointer_up"
	msgPage        = "page"
	msgZoom        = "zoom"
	msgTool        = "tool"
	msgClear       = "clear"
	msgRendered    = "rendered"
)

// Server message types.
const (
	msgDraw      = "draw"
	msgState     = "state"
	msgNotice    = "notice"
	msgCommitted = "committed"
)

type clientMessage struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Delta  float64 `json:"delta"`
	Steps  int     `json:"steps"`
	Tool   string  `json:"tool"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

type serverMessage struct {
	Type       string              `json:"type"`
	Ops        []render.Op         `json:"ops,omitempty"`
	State      *models.SessionView `json:"state,omitempty"`
	Level      string              `json:"level,omitempty"`
	Message    string              `json:"message,omitempty"`
	Annotation *models.Annotation  `json:"annotation,omitempty"`
}

// wsConn serializes writes; save callbacks write from their own goroutines.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// liveSession drives one document session controller from one websocket.
type liveSession struct {
	srv     *Server
	conn    *wsConn
	ctl     *session.Controller
	surface *render.RecordingSurface
	doc     *models.Document
	step    float64
	logger  *zap.Logger
}

func (s *Server) sessionConfig() (session.Config, float64) {
	cfg := session.DefaultConfig()
	step := 0.1
	if s.config != nil {
		sc := s.config.Session
		cfg = session.Config{
			DefaultZoom: sc.DefaultZoom,
			MinZoom:     sc.MinZoom,
			MaxZoom:     sc.MaxZoom,
			MinExtent:   sc.MinExtent,
		}
		if sc.ZoomStep > 0 {
			step = sc.ZoomStep
		}
	}
	return cfg, step
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	owner, _ := identity.FromContext(r.Context())
	doc, err := s.library.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()

	cfg, step := s.sessionConfig()
	ls := &liveSession{
		srv:     s,
		conn:    &wsConn{conn: conn},
		surface: render.NewRecordingSurface(),
		doc:     doc,
		step:    step,
		logger:  s.logger.With(zap.String("document_id", doc.ID)),
	}
	ls.ctl = session.NewController(owner, ls.surface, s.library.Saver(), cfg,
		session.WithLogger(ls.logger),
		session.WithSaveCallback(ls.saved),
	)

	done := make(chan struct{})
	defer close(done)
	go ls.keepAlive(done)

	ls.open(r.Context())
	ls.readLoop()
	ls.ctl.Close()
	ls.logger.Debug("session ended")
}

func (ls *liveSession) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ls.conn.ping(); err != nil {
				return
			}
		}
	}
}

func (ls *liveSession) open(ctx context.Context) {
	ls.ctl.Open(ls.doc)
	n, err := ls.srv.raster.PageCount(ctx, ls.doc.StoragePath)
	if err != nil {
		ls.logger.Warn("failed to load document", zap.Error(err))
		ls.notice("error", "Failed to load PDF.")
	} else {
		ls.ctl.DocumentLoaded(n)
	}
	ls.renderPage(ctx)
	ls.flush()
}

// renderPage sizes the overlay to the current page at the current zoom.
func (ls *liveSession) renderPage(ctx context.Context) {
	size, err := ls.srv.raster.RenderPage(ctx, ls.doc.StoragePath, ls.ctl.Page(), ls.ctl.Zoom())
	if err != nil {
		ls.logger.Debug("render page failed", zap.Int("page", ls.ctl.Page()), zap.Error(err))
		return
	}
	ls.ctl.PageRendered(size.Width, size.Height)
}

func (ls *liveSession) readLoop() {
	for {
		_, raw, err := ls.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ls.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			ls.notice("error", "invalid message")
			continue
		}
		ls.handle(msg)
	}
}

func (ls *liveSession) handle(msg clientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	p := r2.Point{X: msg.X, Y: msg.Y}

	switch msg.Type {
	case msgPointerDown:
		ls.ctl.PointerDown(p)
		ls.flushOps()
		return
	case msgPointerMove:
		ls.ctl.PointerMove(p)
		ls.flushOps()
		return
	case msgPointerUp:
		if a, ok := ls.ctl.PointerUp(p); ok {
			_ = ls.conn.send(serverMessage{Type: msgCommitted, Annotation: &a})
		}
	case msgPage:
		delta := int(msg.Delta)
		if delta == 0 {
			delta = msg.Steps
		}
		ls.ctl.ChangePage(delta)
		ls.renderPage(ctx)
	case msgZoom:
		delta := msg.Delta
		if delta == 0 {
			delta = float64(msg.Steps) * ls.step
		}
		ls.ctl.ChangeZoom(delta)
		ls.renderPage(ctx)
	case msgTool:
		kind, err := models.ParseKind(msg.Tool)
		if err != nil {
			ls.notice("error", err.Error())
			return
		}
		ls.ctl.SetTool(kind)
	case msgClear:
		if err := ls.ctl.ClearPage(ctx); err != nil {
			ls.logger.Warn("clear page save failed", zap.Error(err))
			ls.notice("error", "Failed to save annotations. Please try again.")
		}
	case msgRendered:
		if msg.Width > 0 && msg.Height > 0 {
			ls.ctl.PageRendered(msg.Width, msg.Height)
		}
	default:
		ls.notice("error", "unknown message type "+msg.Type)
		return
	}
	ls.flush()
}

// saved runs on the save goroutine.
func (ls *liveSession) saved(err error) {
	if err != nil {
		ls.notice("error", "Failed to save annotations. Please try again.")
	}
}

func (ls *liveSession) notice(level, message string) {
	_ = ls.conn.send(serverMessage{Type: msgNotice, Level: level, Message: message})
}

func (ls *liveSession) flushOps() {
	if ops := ls.surface.Drain(); len(ops) > 0 {
		_ = ls.conn.send(serverMessage{Type: msgDraw, Ops: ops})
	}
}

func (ls *liveSession) flush() {
	ls.flushOps()
	view := ls.ctl.View()
	_ = ls.conn.send(serverMessage{Type: msgState, State: &view})
}
