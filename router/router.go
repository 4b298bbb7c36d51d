package router

import (
	"net/http"

	"editpdf/config"
	feedbackHandler "editpdf/internal/feedback"
	"editpdf/internal/feedback/service"
	"editpdf/middleware"
	"editpdf/socket"
)

func Setup(cfg *config.Config, svc *service.FeedbackService, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.Auth(cfg.Auth.JWTSecret)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())
		socket.ServeWs(hub, w, r, userID)
	})
	mux.Handle("/ws", auth(wsHandler))

	// REST API
	h := feedbackHandler.NewFeedbackHandler(svc)
	mux.Handle("/api/feedback/document", auth(http.HandlerFunc(h.GetDocument)))
	mux.Handle("/api/feedback/pages", auth(http.HandlerFunc(h.GetPage)))
	mux.Handle("/api/feedback/pages/save", auth(http.HandlerFunc(h.SavePage)))
	mux.Handle("/api/feedback/comments/search", auth(http.HandlerFunc(h.SearchComments)))

	return middleware.CORS(cfg.CORS)(mux)
}
