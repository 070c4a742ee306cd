package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/optenv/core/config"
	"github.com/tailored-agentic-units/optenv/observability"
)

const (
	defaultAddr              = "127.0.0.1:50051"
	defaultReadHeaderTimeout = config.Duration(5 * time.Second)
	defaultShutdownTimeout   = config.Duration(10 * time.Second)
)

// Server lifecycle events.
const (
	EventServerStart observability.EventType = "rpc.server.start"
	EventServerStop  observability.EventType = "rpc.server.stop"
)

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Addr              string          `json:"addr,omitempty" yaml:"addr,omitempty"`
	ReadHeaderTimeout config.Duration `json:"read_header_timeout,omitempty" yaml:"read_header_timeout,omitempty"`
	ShutdownTimeout   config.Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              defaultAddr,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ShutdownTimeout:   defaultShutdownTimeout,
	}
}

// Merge applies non-zero values from source into c.
func (c *ServerConfig) Merge(source *ServerConfig) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.ReadHeaderTimeout > 0 {
		c.ReadHeaderTimeout = source.ReadHeaderTimeout
	}
	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}
}

// LoadServerConfig reads the "server" section of a JSON or YAML config file
// and merges it over defaults. Other sections are ignored.
func LoadServerConfig(filename string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	var loaded struct {
		Server ServerConfig `json:"server" yaml:"server"`
	}
	if err := config.Decode(filename, &loaded); err != nil {
		return nil, err
	}

	cfg.Merge(&loaded.Server)
	return &cfg, nil
}

// Server runs an http.Server until its context is cancelled, then shuts it
// down gracefully.
type Server struct {
	cfg      ServerConfig
	handler  http.Handler
	observer observability.Observer
}

// NewServer creates a Server for handler. Zero fields in cfg take defaults.
func NewServer(cfg *ServerConfig, handler http.Handler, observer observability.Observer) *Server {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	merged := DefaultServerConfig()
	merged.Merge(cfg)
	return &Server{cfg: merged, handler: handler, observer: observer}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. It returns nil after a
// clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout.Std(),
	}

	s.emit(ctx, EventServerStart, map[string]any{"addr": ln.Addr().String()})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout.Std())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.emit(context.WithoutCancel(ctx), EventServerStop, map[string]any{"addr": ln.Addr().String()})
	return err
}

func (s *Server) emit(ctx context.Context, typ observability.EventType, data map[string]any) {
	s.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "rpc.Server",
		Data:      data,
	})
}
