// Package bridge exposes a preview session to an out-of-process UI over a
// WebSocket. Commands come in as JSON objects tagged by "type"; errors and
// light position changes go back out as events to every connected client.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lightsim/app"
	"lightsim/compositor"
	"lightsim/controls"
	"lightsim/core"
	"lightsim/lighting"
)

const (
	Path = "/ws"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 32 << 20
	sendBuffer     = 32
)

var ErrUnknownCommand = errors.New("bridge: unknown command")

// Command is one request from the UI. Only the fields of its Type are read.
type Command struct {
	Type string `json:"type"`

	// upload
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"data,omitempty"`

	Assets    *compositor.Assets        `json:"assets,omitempty"`
	Lighting  *lighting.LightParameters `json:"lighting,omitempty"`
	Mode      string                    `json:"mode,omitempty"`
	Axis      string                    `json:"axis,omitempty"`
	Direction int                       `json:"direction,omitempty"`
	Luminaire *controls.Luminaire       `json:"luminaire,omitempty"`
	Dimmer    float64                   `json:"dimmer,omitempty"`
	Width     int                       `json:"width,omitempty"`
	Height    int                       `json:"height,omitempty"`
}

// Event is pushed to clients.
type Event struct {
	Type     string             `json:"type"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message,omitempty"`
	Position *lighting.Position `json:"position,omitempty"`
	Mode     string             `json:"mode,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server routes WebSocket commands onto the main goroutine through the
// dispatcher and fans events out to every client.
type Server struct {
	dispatcher *core.Dispatcher
	session    *app.Session
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServer creates a server for session. allowedOrigins lists the Origin
// values accepted on upgrade; "*" accepts any, and an empty list only
// accepts same-host requests.
func NewServer(d *core.Dispatcher, session *app.Session, allowedOrigins []string) *Server {
	s := &Server{
		dispatcher: d,
		session:    session,
		clients:    make(map[*client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	session.OnError(func(src app.Source, err error) {
		core.Logger().Warn("preview error", "source", string(src), "err", err)
		s.Broadcast(Event{Type: "error", Source: string(src), Message: err.Error()})
	})
	session.OnPosition(func(p lighting.Position) {
		s.Broadcast(Event{Type: "position", Position: &p})
	})
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[u.Scheme+"://"+u.Host]
	}
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge listen %q: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	core.Logger().Info("bridge listening", "addr", ln.Addr().String(), "path", Path)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Broadcast queues ev for every client. Clients that cannot keep up are
// disconnected. Safe from any goroutine.
func (s *Server) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		core.Logger().Error("bridge event encode failed", "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			core.Logger().Warn("bridge client too slow, dropping", "remote", c.conn.RemoteAddr().String())
			delete(s.clients, c)
			close(c.send)
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		core.Logger().Warn("bridge upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	core.Logger().Info("bridge client connected", "remote", conn.RemoteAddr().String())

	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
		core.Logger().Info("bridge client disconnected", "remote", c.conn.RemoteAddr().String())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.reply(c, Event{Type: "error", Source: "bridge", Message: err.Error()})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				core.Logger().Warn("bridge read failed", "err", err)
			}
			return
		}

		task, err := s.route(cmd)
		if err != nil {
			s.reply(c, Event{Type: "error", Source: "bridge", Message: err.Error()})
			continue
		}
		s.dispatcher.Post(task)
	}
}

// reply sends ev to c alone.
func (s *Server) reply(c *client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// route validates cmd on the reading goroutine and returns the task that
// applies it on the main goroutine.
func (s *Server) route(cmd Command) (func(), error) {
	sess := s.session
	switch cmd.Type {
	case "upload":
		if len(cmd.Data) == 0 {
			return nil, fmt.Errorf("bridge: upload without data")
		}
		return func() { sess.Upload(cmd.Filename, cmd.Data) }, nil
	case "clear":
		return sess.Clear, nil
	case "assets":
		var a compositor.Assets
		if cmd.Assets != nil {
			a = *cmd.Assets
		}
		return func() { sess.SetAssets(a) }, nil
	case "lighting":
		if cmd.Lighting == nil {
			return nil, fmt.Errorf("bridge: lighting without parameters")
		}
		p := *cmd.Lighting
		return func() { sess.ApplyLighting(p) }, nil
	case "mode":
		m, err := lighting.ParseMode(cmd.Mode)
		if err != nil {
			return nil, err
		}
		return func() {
			sess.SetMode(m)
			s.Broadcast(Event{Type: "mode", Mode: m.String()})
		}, nil
	case "nudge":
		axis, err := controls.ParseAxis(cmd.Axis)
		if err != nil {
			return nil, err
		}
		return func() { sess.Nudge(axis, cmd.Direction) }, nil
	case "luminaire":
		return func() { sess.SelectLuminaire(cmd.Luminaire) }, nil
	case "dimmer":
		return func() { sess.SetDimmer(cmd.Dimmer) }, nil
	case "resize":
		return func() { sess.Resize(cmd.Width, cmd.Height) }, nil
	case "reset":
		return sess.ResetCamera, nil
	case "fullscreen":
		return func() { sess.ToggleFullscreen() }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
}
