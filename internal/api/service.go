package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ifmond/internal/netmon"
	"github.com/dmdmdm-nz/ifmond/pkg/version"
)

const shutdownTimeout = 5 * time.Second

// Monitor is the part of the monitor loop the API reads from.
type Monitor interface {
	Status() netmon.Status
	Subscribe() (<-chan netmon.InterfaceEvent, func())
}

type StatusResponse struct {
	Version string `json:"version"`
	netmon.Status
}

// Service represents the read-only HTTP status server
type Service struct {
	address   string
	mon       Monitor
	advertise string

	mu     sync.Mutex
	server *http.Server
	closed bool
}

type Option func(*Service)

// WithAdvertise publishes the API over mDNS under the given instance name.
func WithAdvertise(instance string) Option {
	return func(s *Service) { s.advertise = instance }
}

func NewService(address string, opts ...Option) *Service {
	s := &Service{address: address}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachMonitor wires the monitor (must be called before Start).
func (s *Service) AttachMonitor(m Monitor) {
	s.mon = m
}

// Start listens on the configured address and serves until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	if s.mon == nil {
		log.Error("AttachMonitor was not called before Start")
		<-ctx.Done()
		return nil
	}

	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	log.Infof("Starting ifmond status API at %s", ln.Addr())
	defer log.Info("Stopping ifmond status API")

	if s.advertise != "" {
		withdraw, err := advertise(s.advertise, ln.Addr())
		if err != nil {
			log.WithError(err).Warn("Failed to advertise status API")
		} else {
			defer withdraw()
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.shutdown()
}

func (s *Service) shutdown() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the API routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		err := enc.Encode(StatusResponse{
			Version: version.Version,
			Status:  s.mon.Status(),
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to encode status: %v", err), http.StatusInternalServerError)
			return
		}
	})
	mux.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		StreamEvents(s, w, r)
	})
	return mux
}
