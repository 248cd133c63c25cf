package api

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dzeckelev/gift-ledger/config"
)

// Namespace of the RPC methods, e.g. api_history.
const Namespace = "api"

// Server is a RPC server.
type Server struct {
	rpcSrv  *rpc.Server
	httpSrv *http.Server
}

// NewServer creates a new API server. Metrics of gatherer are served on
// /metrics when it is not nil.
func NewServer(cfg *config.API, gatherer prometheus.Gatherer) *Server {
	rpcSrv := rpc.NewServer()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if gatherer != nil {
		router.Handle("/metrics",
			promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}
	router.PathPrefix("/").Handler(rpcSrv)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		rpcSrv:  rpcSrv,
		httpSrv: httpSrv,
	}
}

// AddHandler registers a new RPC handler.
func (s *Server) AddHandler(handler interface{}) error {
	return s.rpcSrv.RegisterName(Namespace, handler)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe starts to listen and to serve requests.
func (s *Server) ListenAndServe() error {
	// TODO: Enable TLS
	return s.httpSrv.ListenAndServe()
}

// Close closes the server.
func (s *Server) Close() error {
	s.rpcSrv.Stop()
	return s.httpSrv.Close()
}
