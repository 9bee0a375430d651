package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"weebdomains/pkg/models"
	"weebdomains/pkg/pricing"
	"weebdomains/pkg/wallet"
	"weebdomains/pkg/watcher"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	watcher *watcher.Watcher
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
	baseCtx context.Context
	logger  *slog.Logger
}

func NewServer(w *watcher.Watcher) *Server {
	s := &Server{
		watcher: w,
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
		baseCtx: context.Background(),
		logger:  slog.Default().With("component", "server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/names", s.handleNames)
	s.mux.HandleFunc("GET /api/price", s.handlePrice)
	s.mux.HandleFunc("POST /api/connect", s.handleConnect)
	s.mux.HandleFunc("POST /api/network/switch", s.handleSwitch)
	s.mux.HandleFunc("POST /api/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/records", s.handleUpdateRecord)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Start serves until ctx is cancelled. Writes started through the API run on
// ctx as well.
func (s *Server) Start(ctx context.Context, port int) error {
	s.baseCtx = ctx
	go s.listenToWatcher(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("API server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Snapshot())
}

// nameView is a catalog entry with its display fields resolved.
type nameView struct {
	models.ListedName
	FullName       string            `json:"full_name"`
	RecordKind     models.RecordKind `json:"record_kind"`
	MarketplaceURL string            `json:"marketplace_url"`
	Mine           bool              `json:"mine"`
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	snap := s.watcher.Snapshot()
	reg := s.watcher.Config().Registry
	views := make([]nameView, 0, len(snap.Catalog))
	for _, n := range snap.Catalog {
		views = append(views, nameView{
			ListedName:     n,
			FullName:       n.FullName(reg.TLD),
			RecordKind:     n.RecordKind(),
			MarketplaceURL: n.MarketplaceURL(reg.MarketplaceURL, reg.ContractAddress),
			Mine:           n.IsOwnedBy(snap.Account),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type priceResponse struct {
	Name    string `json:"name"`
	Length  int    `json:"length"`
	Valid   bool   `json:"valid"`
	FeeWei  string `json:"fee_wei,omitempty"`
	Fee     string `json:"fee,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	length := pricing.NameLength(name)
	resp := priceResponse{Name: name, Length: length, Valid: length >= pricing.MinNameLength}
	if !resp.Valid {
		resp.Message = "Domain must be at least 3 characters long"
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.FeeWei = pricing.Fee(length).String()
	resp.Fee = pricing.FeeEther(length)
	resp.Symbol = s.watcher.Config().Network.NativeCurrency.Symbol
	writeJSON(w, http.StatusOK, resp)
}

func providerStatus(err error) int {
	if errors.Is(err, wallet.ErrProviderMissing) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	account, err := s.watcher.Connect(r.Context())
	if err != nil {
		writeError(w, providerStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": account})
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	if err := s.watcher.SwitchNetwork(r.Context()); err != nil {
		writeError(w, providerStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.watcher.Snapshot().Network)
}

type writeRequest struct {
	Name   string `json:"name"`
	Record string `json:"record"`
}

func decodeWrite(r *http.Request) (writeRequest, error) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	req.Name = strings.TrimSpace(req.Name)
	return req, nil
}

// handleRegister starts a mint and returns at once; the result arrives as an
// outcome event.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWrite(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	go func() {
		if _, err := s.watcher.Register(s.baseCtx, req.Name, req.Record); err != nil {
			s.logger.Info("register finished with error", "name", req.Name, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "submitted", "name": req.Name})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWrite(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" || req.Record == "" {
		writeError(w, http.StatusBadRequest, errors.New("name and record are required"))
		return
	}
	go func() {
		if err := s.watcher.UpdateRecord(s.baseCtx, req.Name, req.Record); err != nil {
			s.logger.Info("record update finished with error", "name", req.Name, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "submitted", "name": req.Name})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.clients[conn] = true
	// Send initial state
	err = conn.WriteJSON(map[string]interface{}{
		"type": "initial",
		"data": s.watcher.Snapshot(),
	})
	s.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher(ctx context.Context) {
	sub := s.watcher.Subscribe()
	defer s.watcher.Unsubscribe(sub)

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(event)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
