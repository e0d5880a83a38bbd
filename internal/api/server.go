// Package api exposes read-only HTTP queries and a websocket fill/depth
// feed over the engine, adapted from the REST+websocket sidecar pattern.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uinb/galois-go/internal/clearing"
	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/engine"
)

// Server serves the query-only HTTP surface and a websocket feed of
// fills and depth updates. It only reads from Engine; all writes go
// through the RPC session protocol.
type Server struct {
	eng    *engine.Engine
	log    *zap.Logger
	router *mux.Router
	hub    *Hub
}

func NewServer(eng *engine.Engine, log *zap.Logger) *Server {
	s := &Server{eng: eng, log: log, router: mux.NewRouter(), hub: NewHub(log)}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/markets", s.handleMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}/depth", s.handleDepth).Methods("GET")
	api.HandleFunc("/markets/{symbol}/orders/{orderId}", s.handleOrder).Methods("GET")
	api.HandleFunc("/accounts/{user}/{currency}", s.handleBalance).Methods("GET")
	api.HandleFunc("/accounts/{user}", s.handleAccounts).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the HTTP server and websocket hub until addr stops
// accepting or the process exits.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	})
	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// PublishFills forwards a command's clearing outputs to every
// websocket subscriber of that symbol's fill channel.
func (s *Server) PublishFills(symbol core.Symbol, outputs []clearing.Output) {
	s.hub.BroadcastToChannel("fills:"+symbol.String(), outputs)
}

// PublishDepth forwards a fresh depth snapshot to that symbol's depth
// channel subscribers.
func (s *Server) PublishDepth(symbol core.Symbol, levels int) {
	book, ok := s.eng.Book(symbol)
	if !ok {
		return
	}
	s.hub.BroadcastToChannel("depth:"+symbol.String(), book.Depth(symbol, levels))
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.eng.Symbols.List())
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	symbol, ok := symbolFromVars(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid symbol")
		return
	}
	book, ok := s.eng.Book(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "market not found")
		return
	}
	levels := 32
	if q := r.URL.Query().Get("levels"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			levels = n
		}
	}
	respondJSON(w, book.Depth(symbol, levels))
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	symbol, ok := symbolFromVars(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid symbol")
		return
	}
	book, ok := s.eng.Book(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "market not found")
		return
	}
	orderId, err := strconv.ParseUint(mux.Vars(r)["orderId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	order, ok := book.FindOrder(core.OrderId(orderId))
	if !ok {
		respondError(w, http.StatusNotFound, "order not found")
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user, err := core.UserIdFromHex(vars["user"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	cur, err := strconv.ParseUint(vars["currency"], 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid currency")
		return
	}
	respondJSON(w, s.eng.Ledger.Balance(user, core.Currency(cur)))
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	user, err := core.UserIdFromHex(mux.Vars(r)["user"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	respondJSON(w, s.eng.Ledger.Accounts()[user])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func symbolFromVars(r *http.Request) (core.Symbol, bool) {
	raw := mux.Vars(r)["symbol"]
	var base, quote uint32
	if n, err := fmt.Sscanf(raw, "%d-%d", &base, &quote); err != nil || n != 2 {
		return core.Symbol{}, false
	}
	return core.Symbol{Base: core.Currency(base), Quote: core.Currency(quote)}, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
