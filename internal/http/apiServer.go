package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"directchat/internal/api"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, addr string) *APIServer {
	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: NewHandler(apiHandlers),
		},
	}
}

// NewHandler returns the routing table of the JSON API.
func NewHandler(apiHandlers *api.API) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", apiHandlers.HealthHandler)
	mux.HandleFunc("POST /api/auth", apiHandlers.LoginHandler)
	mux.HandleFunc("GET /api/search", apiHandlers.SearchHandler)
	mux.HandleFunc("GET /api/users/{id}", apiHandlers.UserHandler)
	mux.HandleFunc("GET /api/chats", apiHandlers.ChatsHandler)
	mux.HandleFunc("POST /api/chats/{id}/messages", apiHandlers.AppendMessageHandler)
	mux.HandleFunc("GET /api/messages", apiHandlers.MessagesHandler)
	mux.HandleFunc("POST /api/messages", apiHandlers.SendMessageHandler)

	return mux
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
