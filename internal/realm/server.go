package realm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/udisondev/bnetgo/internal/config"
	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/db"
	"github.com/udisondev/bnetgo/internal/realmauth"
)

// Server is the realm server: it accepts connections on port 6113, redeems
// chat server hand-off tokens and manages characters and games.
type Server struct {
	log     *slog.Logger
	cfg     config.RealmServer
	db      *db.DB
	handler *Handler

	listener net.Listener
	mu       sync.Mutex
}

// NewServer wires the realm server: the character repository, the token
// broker sharing the chat server's token table, and the game registry.
func NewServer(log *slog.Logger, cfg config.RealmServer, database *db.DB) *Server {
	chars := db.NewCharacterRepository(database.Pool())
	tokens := db.NewTokenStore(database.Pool(), cfg.TokenTTL())
	broker := realmauth.NewBroker(log, tokens)

	return &Server{
		log:     log,
		cfg:     cfg,
		db:      database,
		handler: NewHandler(log, cfg, broker, chars, NewGameRegistry()),
	}
}

// Addr returns the listen address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops the listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on a ready listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		s.log.Info("realm server started", "address", ln.Addr(), "realm", s.cfg.RealmName)
		s.acceptLoop(ctx, &wg, ln)
	})

	wg.Wait()

	return nil
}

func (s *Server) acceptLoop(ctx context.Context, wg *sync.WaitGroup, ln net.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Error("failed to accept new connection", "error", err)
				continue
			}
			wg.Go(func() {
				s.handleConnection(ctx, conn)
			})
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	client, err := NewClient(conn)
	if err != nil {
		s.log.Error("failed to create client", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	s.log.Info("new connection", "remote", client.IP())
	defer s.log.Info("connection closed", "remote", client.IP())

	decoder := NewDecoder()
	buf := make([]byte, constants.DefaultReadBufSize)

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			for {
				frame, ok, err := decoder.Next()
				if err != nil {
					s.log.Info("closing connection on framing error", "remote", client.IP(), "err", err)
					return
				}
				if !ok {
					break
				}
				if err := s.handler.Handle(ctx, client, frame); err != nil {
					s.log.Error("failed to handle message",
						"type", fmt.Sprintf("0x%02X", frame.Type), "remote", client.IP(), "err", err)
				}
			}
		}
		if err != nil {
			return
		}
	}
}
