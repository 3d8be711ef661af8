package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	"image/png"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/esimov/water-fluid/controller"
	"github.com/esimov/water-fluid/detector"
	"github.com/gorilla/websocket"
)

// cellPixels is the size in pixels of a grid cell on the streamed frames.
const cellPixels = 4

// faceDensity is the density injected at every detected face,
// eyeDensity the one injected at every localised pupil.
const (
	faceDensity = 2.0
	eyeDensity  = 1.0
)

const (
	writeWait = 5 * time.Second

	// maxMessageSize bounds a single client message, webcam frames included.
	maxMessageSize = 4 << 20
)

// HttpParams holds the address and the static file settings of the server.
type HttpParams struct {
	Address string
	Prefix  string
	Root    string
}

// Event is a pointer event sent by the browser.
type Event struct {
	Type   string `json:"type"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// A server application calls the Upgrade method from an HTTP request handler to initiate a connection
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1 << 16,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server streams a fluid simulation to websocket clients and applies their pointer events.
type Server struct {
	params   HttpParams
	interval time.Duration
	det      *detector.Detector

	// mu serializes every access to ctrl
	mu    sync.Mutex
	ctrl  *controller.Controller
	frame *image.RGBA

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex
}

// NewServer creates a server ticking the controller fps times per second.
// det may be nil, in which case webcam frames are ignored.
func NewServer(p HttpParams, ctrl *controller.Controller, fps int, det *detector.Detector) *Server {
	if fps <= 0 {
		fps = 30
	}
	if p.Prefix == "" {
		p.Prefix = "/"
	}
	w, h := ctrl.Solver().Size()
	return &Server{
		params:   p,
		interval: time.Second / time.Duration(fps),
		det:      det,
		ctrl:     ctrl,
		frame:    image.NewRGBA(image.Rect(0, 0, w*cellPixels, h*cellPixels)),
		clients:  make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Handler returns the http handler serving the static files, the current frame and the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.params.Root != "" {
		mux.Handle(s.params.Prefix, http.StripPrefix(s.params.Prefix, http.FileServer(http.Dir(s.params.Root))))
	}
	mux.HandleFunc("/frame.png", s.frameHandler)
	mux.HandleFunc("/ws", s.wsHandler)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Print(r.RemoteAddr + " " + r.Method + " " + r.URL.String())
		mux.ServeHTTP(w, r)
	})
}

// Run serves http and runs the simulation loop until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	if s.params.Root != "" {
		root, err := filepath.Abs(s.params.Root)
		if err != nil {
			return err
		}
		s.params.Root = root
	}
	srv := &http.Server{
		Addr:    s.params.Address,
		Handler: s.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("serving %s as %s on %s", s.params.Root, s.params.Prefix, s.params.Address)
		errc <- srv.ListenAndServe()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.closeClients()
			return srv.Shutdown(shutdownCtx)
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			if err := s.Tick(); err != nil {
				log.Println(err)
			}
		}
	}
}

// Tick advances the simulation by one frame and broadcasts the rendered frame.
func (s *Server) Tick() error {
	s.mu.Lock()
	s.ctrl.Tick()
	buf, err := s.encodeFrame()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.broadcast(buf)
	return nil
}

// encodeFrame renders the current density as PNG. The caller must hold mu.
func (s *Server) encodeFrame() ([]byte, error) {
	s.ctrl.Render(s.frame)

	var buf bytes.Buffer
	if err := png.Encode(&buf, s.frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) broadcast(frame []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for conn, mutex := range s.clients {
		mutex.Lock()
		err := conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = conn.WriteMessage(websocket.BinaryMessage, frame)
		}
		if err != nil {
			log.Printf("error: %v", err)
			// the reader notices the broken connection and unregisters it
			conn.Close()
		}
		mutex.Unlock()
	}
}

func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for conn := range s.clients {
		conn.Close()
	}
}

// frameHandler writes the current frame as a PNG image.
func (s *Server) frameHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	buf, err := s.encodeFrame()
	s.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf)
}

// wsHandler defines the websocket connection endpoint
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	// Upgrade the http connection to a WebSocket connection
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.Println(err)
		}
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = &sync.Mutex{}
	s.clientsMu.Unlock()

	go s.readSocket(conn)
}

// readSocket listen for new messages being sent to the websocket
func (s *Server) readSocket(conn *websocket.Conn) {
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)

	for {
		messageType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			var ev Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				log.Printf("invalid event: %v", err)
				continue
			}
			s.apply(ev)
		case websocket.BinaryMessage:
			if err := s.detect(msg); err != nil {
				log.Printf("invalid webcam frame: %v", err)
			}
		}
	}
}

// apply forwards a pointer event to the controller.
func (s *Server) apply(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case "press":
		s.ctrl.Press(ev.X, ev.Y, ev.Width, ev.Height)
	case "drag":
		s.ctrl.Drag(ev.X, ev.Y, ev.Width, ev.Height)
	case "release":
		s.ctrl.Release()
	case "reset":
		s.ctrl.Reset()
	default:
		log.Printf("unknown event type %q", ev.Type)
	}
}

// detect decodes a webcam frame and injects density at every detected face and pupil.
func (s *Server) detect(data []byte) error {
	if s.det == nil {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	faces := s.det.Detect(img)
	b := img.Bounds()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := s.ctrl.Solver().Size()
	for _, f := range faces {
		x, y := f.Center(b.Dx(), b.Dy(), w, h)
		s.ctrl.Splat(x, y, faceDensity)
		for _, e := range f.Eyes {
			x, y := e.Center(b.Dx(), b.Dy(), w, h)
			s.ctrl.Splat(x, y, eyeDensity)
		}
	}
	return nil
}
