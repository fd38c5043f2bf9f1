package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/imageio"
	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
)

// Reply message types.
const (
	msgRulerState = "ruler_state"
	msgCalibrated = "calibrated"
	msgResult     = "result"
	msgState      = "state"
	msgError      = "error"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SessionRequest is a client message on /ws/session. Image carries the
// photo for "load" (base64 in JSON). X and Y are display coordinates for
// pointer and touch events; Value is the slider length or rotation delta.
type SessionRequest struct {
	Type     string                `json:"type"`
	Image    []byte                `json:"image,omitempty"`
	X        float64               `json:"x,omitempty"`
	Y        float64               `json:"y,omitempty"`
	Value    float64               `json:"value,omitempty"`
	Snap     string                `json:"snap,omitempty"`
	Viewport *calibration.Viewport `json:"viewport,omitempty"`
}

// SessionResponse is a server message on /ws/session.
type SessionResponse struct {
	Type        string             `json:"type"`
	Step        pipeline.Step      `json:"step"`
	Busy        bool               `json:"busy"`
	Ruler       *calibration.Ruler `json:"ruler,omitempty"`
	Calibration *CalibrationInfo   `json:"calibration,omitempty"`
	Ticks       *TickCalibration   `json:"ticks,omitempty"`
	Result      *MeasureResult     `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	Stage       string             `json:"stage,omitempty"`
}

// wsSession serialises writes to one connection and owns its session.
type wsSession struct {
	conn    *websocket.Conn
	session *pipeline.Session
	logger  *slog.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// sessionWebSocketHandler runs one measurement session per connection.
func (s *Server) sessionWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	sc, err := s.getScanner()
	if err != nil {
		s.writeMeasureError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()
	if s.cfg.MaxUploadMB > 0 {
		// base64 inflates the image by a third
		conn.SetReadLimit(s.cfg.MaxUploadMB * 1024 * 1024 * 4 / 3)
	}

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	logger := slog.Default().With("remote_addr", r.RemoteAddr)
	logger.Info("WebSocket session established")

	ws := &wsSession{
		conn:    conn,
		session: pipeline.NewSession(sc).WithLogger(logger),
		logger:  logger,
	}
	ws.run()
	ws.wg.Wait()
}

func (ws *wsSession) run() {
	_ = ws.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	ws.conn.SetPongHandler(func(string) error {
		_ = ws.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go ws.ping(done)

	for {
		messageType, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		_ = ws.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType != websocket.TextMessage {
			continue
		}
		var req SessionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			ws.sendError(fmt.Errorf("failed to parse message: %w", err))
			continue
		}
		ws.handle(req)
	}
}

func (ws *wsSession) ping(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ws.writeMu.Lock()
			err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
			ws.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handle dispatches one client message. Scans and automatic calibration
// run in the background so the ruler stays responsive; the session
// rejects overlapping work with ErrBusy.
func (ws *wsSession) handle(req SessionRequest) {
	switch req.Type {
	case "load":
		img, _, err := imageio.DecodeBytes(req.Image)
		if err != nil {
			ws.sendError(err)
			return
		}
		if err := ws.session.Load(img); err != nil {
			ws.sendError(err)
			return
		}
		ws.sendState(msgRulerState)
	case "viewport":
		if req.Viewport == nil {
			ws.sendError(errors.New("viewport message without viewport"))
			return
		}
		if err := ws.session.SetViewport(*req.Viewport); err != nil {
			ws.sendError(err)
			return
		}
		ws.sendState(msgRulerState)
	case "confirm":
		sc, err := ws.session.ConfirmCalibration()
		if err != nil {
			ws.sendError(err)
			return
		}
		calibrationConfidence.WithLabelValues(sc.Method.String()).Observe(sc.Confidence)
		info := toCalibrationInfo(sc)
		ws.send(ws.response(msgCalibrated, func(r *SessionResponse) { r.Calibration = &info }))
	case "auto_calibrate":
		ws.background(ws.autoCalibrate)
	case "scan":
		ws.background(ws.scan)
	case "rescan":
		ws.stateOrError(ws.session.Rescan(), msgState)
	case "recalibrate":
		ws.stateOrError(ws.session.Recalibrate(), msgRulerState)
	case "reset":
		ws.stateOrError(ws.session.Reset(), msgState)
	default:
		kind, err := calibration.ParseEventKind(req.Type)
		if err != nil {
			ws.sendError(fmt.Errorf("unsupported message type %q", req.Type))
			return
		}
		ev := calibration.Event{
			Kind:  kind,
			X:     req.X,
			Y:     req.Y,
			Value: req.Value,
			Snap:  calibration.Orientation(req.Snap),
		}
		if _, err := ws.session.Calibrate(ev); err != nil {
			ws.sendError(err)
			return
		}
		ws.sendState(msgRulerState)
	}
}

func (ws *wsSession) background(f func()) {
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		f()
	}()
}

func (ws *wsSession) scan() {
	start := time.Now()
	m, err := ws.session.Scan()
	if errors.Is(err, pipeline.ErrBusy) {
		ws.sendError(err)
		return
	}
	scanDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())
	if err != nil {
		scansTotal.WithLabelValues("websocket", "error").Inc()
		ws.sendError(err)
		return
	}
	recordMeasurement("websocket", m)

	st := ws.session.Snapshot()
	res := toMeasureResult(m, st.Width, st.Height)
	ws.send(ws.response(msgResult, func(r *SessionResponse) { r.Result = res }))
}

func (ws *wsSession) autoCalibrate() {
	res, err := ws.session.AutoCalibrate()
	if err != nil {
		ws.sendError(err)
		return
	}
	calibrationConfidence.WithLabelValues(calibration.AutomaticTickDetection.String()).Observe(res.Confidence)
	info := toCalibrationInfo(res.Scale())
	ticks := toTickCalibration(res)
	ws.send(ws.response(msgCalibrated, func(r *SessionResponse) {
		r.Calibration = &info
		r.Ticks = ticks
	}))
}

func (ws *wsSession) stateOrError(err error, msgType string) {
	if err != nil {
		ws.sendError(err)
		return
	}
	ws.sendState(msgType)
}

// response builds a reply carrying the current step, then applies fill.
func (ws *wsSession) response(msgType string, fill func(*SessionResponse)) SessionResponse {
	st := ws.session.Snapshot()
	resp := SessionResponse{Type: msgType, Step: st.Step, Busy: st.Busy, Ruler: st.Ruler}
	if fill != nil {
		fill(&resp)
	}
	return resp
}

func (ws *wsSession) sendState(msgType string) {
	ws.send(ws.response(msgType, nil))
}

func (ws *wsSession) sendError(err error) {
	ws.send(ws.response(msgError, func(r *SessionResponse) {
		r.Error = err.Error()
		var scanErr *pipeline.ScanError
		if errors.As(err, &scanErr) {
			r.Error = scanErr.Message()
			r.Stage = string(scanErr.Stage)
		}
	}))
}

func (ws *wsSession) send(resp SessionResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		ws.logger.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		ws.logger.Warn("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
