package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"
)

const shutdownTimeout = 5 * time.Second

type HttpServer interface {
	// Host is the bound address once started.
	Host() string
	Start() error
	Close() error
}

type CreateServer func(host string, handler http.Handler) HttpServer

// GoHttpServer binds its listener in Start, so a ":0" host resolves to the
// port the kernel picked.
type GoHttpServer struct {
	server   *http.Server
	listener net.Listener
	served   chan struct{}
}

func NewGoHttpServer(host string, handler http.Handler) *GoHttpServer {
	return &GoHttpServer{
		server: &http.Server{
			Addr:              host,
			Handler:           handler,
			ReadTimeout:       5 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
		},
		served: make(chan struct{}),
	}
}

func (g *GoHttpServer) Host() string {
	if g.listener == nil {
		return g.server.Addr
	}
	return g.listener.Addr().String()
}

func (g *GoHttpServer) Start() error {
	listener, listenErr := net.Listen("tcp", g.server.Addr)
	if listenErr != nil {
		return listenErr
	}
	g.listener = listener

	go func() {
		defer close(g.served)
		serveErr := g.server.Serve(listener)
		if !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("Http server stopped", slog.String("host", g.Host()), slog.Any("error", serveErr))
		}
	}()
	return nil
}

// Close lets in-flight requests finish for up to shutdownTimeout.
func (g *GoHttpServer) Close() error {
	if g == nil || g.listener == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := g.server.Shutdown(ctx)
	<-g.served
	return shutdownErr
}

// HttpTestServer serves on a loopback port chosen by httptest.
type HttpTestServer struct {
	server *httptest.Server
}

func NewHttpTestServer(handler http.Handler) *HttpTestServer {
	return &HttpTestServer{server: httptest.NewUnstartedServer(handler)}
}

func (t *HttpTestServer) Host() string {
	return strings.TrimPrefix(t.server.URL, "http://")
}

func (t *HttpTestServer) Start() error {
	if t.server.URL == "" {
		t.server.Start()
		slog.Debug("Started test server", slog.String("url", t.server.URL))
	}
	return nil
}

func (t *HttpTestServer) Close() error {
	if t != nil {
		t.server.Close()
	}
	return nil
}
