// Package transfer implements the HTTPS receiver and the sending client.
package transfer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"myshare/auth"
	"myshare/identity"
	"myshare/storage"
	"myshare/trust"
)

const (
	// DefaultMaxMemory is the multipart size kept in memory before spilling to disk.
	DefaultMaxMemory  = 32 << 20
	readHeaderTimeout = 30 * time.Second
)

// Recorder persists receive-side audit data. *storage.Store satisfies it.
type Recorder interface {
	SaveReceivedFile(file storage.ReceivedFile) error
	RecordSecurityEvent(eventType, peerDeviceID, severity string, details map[string]string) error
	RecordKeyRotationEvent(event storage.KeyRotationEvent) error
}

// Options wires a Server.
type Options struct {
	Identity *identity.Identity
	Trust    *trust.Store
	Verifier *auth.Verifier
	Sink     Sink
	Recorder Recorder
	State    *State
}

// Server receives authenticated uploads over TLS.
type Server struct {
	identity *identity.Identity
	trust    *trust.Store
	verifier *auth.Verifier
	sink     Sink
	recorder Recorder
	state    *State

	router *mux.Router

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer validates opts and builds the router.
func NewServer(opts Options) (*Server, error) {
	if opts.Identity == nil {
		return nil, errors.New("identity is required")
	}
	if opts.Trust == nil {
		return nil, errors.New("trust store is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if opts.Verifier == nil {
		opts.Verifier = auth.NewVerifier(auth.NewMemoryNonceCache(), auth.DefaultWindow)
	}
	if opts.State == nil {
		opts.State = NewState()
	}

	s := &Server{
		identity: opts.Identity,
		trust:    opts.Trust,
		verifier: opts.Verifier,
		sink:     opts.Sink,
		recorder: opts.Recorder,
		state:    opts.State,
	}

	router := mux.NewRouter()
	router.HandleFunc("/pubkey", s.handlePublicKey).Methods(http.MethodGet)
	router.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	s.router = router

	return s, nil
}

// Handler returns the HTTP handler without TLS, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	go func() {
		if err := s.Serve(listener); err != nil {
			slog.Error("transfer server stopped", "error", err)
		}
	}()
	return nil
}

// Serve accepts TLS connections on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		TLSConfig:         s.identity.TLSConfig(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("transfer server already serving")
	}
	s.httpServer = httpServer
	s.listener = listener
	s.mu.Unlock()

	s.state.Set(ModeReceiveArmed)
	slog.Info("transfer server listening", "addr", listener.Addr().String(), "device_id", s.identity.DeviceID)

	err := httpServer.Serve(tls.NewListener(listener, httpServer.TLSConfig))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 before Serve.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Shutdown stops accepting connections and waits for in-flight uploads.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}

	err := httpServer.Shutdown(ctx)
	s.state.Set(ModeIdle)
	return err
}
