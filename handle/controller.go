package handle

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// InitializeRoutes The init function for all routes
func InitializeRoutes(Router *mux.Router, h *Handler) {
	Router.Use(requestID, accessLog)
	Router.Use(handlers.RecoveryHandler(
		handlers.RecoveryLogger(logrus.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	))

	Router.HandleFunc("/", h.index).Methods(http.MethodGet)
	Router.HandleFunc("/photo", h.photoForm).Methods(http.MethodPost)
	Router.HandleFunc("/ip", h.ipForm).Methods(http.MethodPost)
	Router.Handle("/health_check", health()).Methods(http.MethodGet)

	api := Router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.apiHealth).Methods(http.MethodGet)
	api.HandleFunc("/photo", h.apiPhoto).Methods(http.MethodPost)
	api.HandleFunc("/ip/{ip}", h.apiIP).Methods(http.MethodGet)
}
