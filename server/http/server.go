package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/QdPieDrury/PrismA/service"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	welcomeMessage = "Welcome to prismA fetch one of our API's to get started!"

	disclaimerFmt = "Keep this ID safe: %s. You will need it to close this WebSocket room " +
		"using the /close-ws/:id API. By creating this socket, you agree that you are fully " +
		"responsible for its use, resource consumption, and any memory leaks due to unused or " +
		"idle sockets. We do not create, maintain, or manage these sockets on your behalf — " +
		"you, the user, are the sole operator and controller of this connection."
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type RoomService interface {
	CreateRoom() (string, error)
	CloseRoom(roomID string) error
}

type CreateResponse struct {
	Success    bool   `json:"success"`
	WSUrl      string `json:"wsUrl"`
	ID         string `json:"id"`
	Disclaimer string `json:"disclaimer"`
}

type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type WelcomeResponse struct {
	Message string `json:"message"`
}

type Server struct {
	logger    zerolog.Logger
	svc       RoomService
	wsBaseURL string
	staticDir string
	static    http.Handler
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	ListenAddr  string
	WSBaseURL   string
	StaticDir   string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:    cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:       cfg.RoomService,
		wsBaseURL: strings.TrimSuffix(cfg.WSBaseURL, "/"),
		staticDir: cfg.StaticDir,
		static:    http.FileServer(http.Dir(cfg.StaticDir)),
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /create-ws", srv.createRoom)
	r.HandleFunc("POST /close-ws/{roomID}", srv.closeRoom)
	r.HandleFunc("GET /", srv.root)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: cors.AllowAll().Handler(r),
	}
	return srv
}

func (srv *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	if acceptsHTML(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	roomID, err := srv.svc.CreateRoom()
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to create room")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	b, err := json.Marshal(&CreateResponse{
		Success:    true,
		WSUrl:      srv.wsBaseURL + "/" + roomID,
		ID:         roomID,
		Disclaimer: fmt.Sprintf(disclaimerFmt, roomID),
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusOK, b)
}

func (srv *Server) closeRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	if err := srv.svc.CloseRoom(roomID); err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			b, _ := json.Marshal(&GenericResponse{Message: "Room not found"})
			writeBytes(w, http.StatusNotFound, b)
			return
		}
		srv.logger.Error().Err(err).Str("roomID", roomID).Msg("failed to close room")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	b, err := json.Marshal(&GenericResponse{Success: true, Message: "Room " + roomID + " closed"})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusOK, b)
}

func (srv *Server) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		srv.static.ServeHTTP(w, r)
		return
	}
	if acceptsHTML(r) {
		http.ServeFile(w, r, filepath.Join(srv.staticDir, "index.html"))
		return
	}
	b, err := json.Marshal(&WelcomeResponse{Message: welcomeMessage})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusOK, b)
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
