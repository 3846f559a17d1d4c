package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	v1handlers "github.com/openrufus/rufus/internal/api/v1/handlers"
	v1chat "github.com/openrufus/rufus/internal/api/v1/handlers/chat"
	v1mware "github.com/openrufus/rufus/internal/api/v1/middleware"
	"github.com/openrufus/rufus/internal/connections"
	"github.com/openrufus/rufus/internal/services/chat"
)

func RegisterRoutes(router *mux.Router, chatService chat.Service, manager *connections.Manager) {
	router.Use(v1mware.CORS)

	router.HandleFunc("/health", v1handlers.HandleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(v1mware.RateLimit("global"))

	chatRouter := api.PathPrefix("/chat").Subrouter()
	chatRouter.Use(v1mware.RateLimit("chat"))
	chatRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		v1chat.HandleChat(chatService, w, r)
	}).Methods("POST", "OPTIONS")
	chatRouter.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		v1chat.HandleChatWebSocket(chatService, manager, w, r)
	}).Methods("GET")
}
