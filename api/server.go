package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketdesk/marketdesk/pkg/dashboard"
	"github.com/marketdesk/marketdesk/pkg/models"
)

// Server exposes the dashboard's read model and user actions over HTTP so a
// presentation layer can attach. Rendering lives entirely on the other side
// of this boundary.
type Server struct {
	controller *dashboard.Controller
	logger     *logrus.Logger
	port       string
}

func NewServer(controller *dashboard.Controller, logger *logrus.Logger, port string) *Server {
	return &Server{
		controller: controller,
		logger:     logger,
		port:       port,
	}
}

func (s *Server) Start() error {
	s.logger.Infof("Starting view API on port %s", s.port)
	return http.ListenAndServe(":"+s.port, s.Handler())
}

// Handler builds the route table. Exposed so tests can drive the API
// without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/view", s.handleView)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/quotes", s.handleQuotes)
	mux.HandleFunc("/api/history/", s.handleHistory)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/api/draft", s.handleDraft)
	mux.HandleFunc("/api/chart", s.handleChart)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.controller.View())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view := s.controller.View()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":        view.State,
		"notification": view.Notification,
	})
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.controller.View().Quotes)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	symbol := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if symbol == "" {
		http.Error(w, "Missing symbol", http.StatusBadRequest)
		return
	}

	points := s.controller.View().Histories[symbol]
	if points == nil {
		points = []models.HistoryPoint{}
	}
	s.writeJSON(w, http.StatusOK, points)
}

type orderView struct {
	models.Order
	Total float64 `json:"total"`
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		orders := s.controller.View().Orders
		views := make([]orderView, 0, len(orders))
		for _, o := range orders {
			views = append(views, orderView{Order: o, Total: o.Total()})
		}
		s.writeJSON(w, http.StatusOK, views)

	case http.MethodPost:
		// Submission is asynchronous; the result lands in the order list
		// and notification slot.
		s.controller.SubmitDraft()
		w.WriteHeader(http.StatusAccepted)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.controller.View().Draft)

	case http.MethodPut, http.MethodPost:
		var draft models.OrderDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.controller.SetDraft(draft)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Symbol == "" {
		http.Error(w, "Missing symbol", http.StatusBadRequest)
		return
	}

	s.controller.SelectChart(body.Symbol)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
