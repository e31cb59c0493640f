package bncs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/udisondev/bnetgo/internal/bnftp"
	"github.com/udisondev/bnetgo/internal/chat"
	"github.com/udisondev/bnetgo/internal/config"
	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/db"
	"github.com/udisondev/bnetgo/internal/protocol"
	"github.com/udisondev/bnetgo/internal/realmauth"
	"github.com/udisondev/bnetgo/internal/session"
)

// Server is the chat server: it accepts connections on port 6112, speaks the
// framed chat protocol and hands file transfer connections to BNFTP.
type Server struct {
	log *slog.Logger
	cfg config.ChatServer
	db  *db.DB

	sendPool *BytePool
	readPool *BytePool

	sessions   *session.Registry
	channels   *chat.Registry
	dispatcher *Dispatcher
	files      *bnftp.Handler

	listener net.Listener
	mu       sync.Mutex
}

// NewServer wires the full chat server: repositories, session and channel
// registries, the command interpreter, the realm token broker and the
// dispatch table.
func NewServer(log *slog.Logger, cfg config.ChatServer, database *db.DB) *Server {
	accounts := db.NewAccountRepository(database.Pool())
	tokens := db.NewTokenStore(database.Pool(), cfg.TokenTTL())
	broker := realmauth.NewBroker(log, tokens)

	sessions := session.NewRegistry()
	channels := chat.NewRegistry()
	whispers := chat.NewWhisperRouter(sessions)
	commands := chat.NewInterpreter(log, sessions, channels, whispers, cfg.ServerName)

	s := &Server{
		log:      log,
		cfg:      cfg,
		db:       database,
		sendPool: NewBytePool(constants.DefaultSendBufSize),
		readPool: NewBytePool(constants.DefaultReadBufSize),
		sessions: sessions,
		channels: channels,
		files:    bnftp.NewHandler(log, bnftp.NewFileProvider(log, cfg.FileRoot)),
	}

	s.dispatcher = NewDispatcher(log)
	handler := NewHandler(log, cfg, accounts, broker, sessions, channels, commands)
	handler.RegisterAll(s.dispatcher)

	return s
}

// Sessions returns the session registry, shared with the realm server in
// single-process deployments.
func (s *Server) Sessions() *session.Registry {
	return s.sessions
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

// Serve runs the accept loop on a ready listener. Split out so tests can
// serve on an ephemeral port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		s.log.Info("chat server started", "address", ln.Addr())
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

	client, err := NewClient(conn, s.sendPool)
	if err != nil {
		s.log.Error("failed to create client", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	s.log.Info("new connection", "remote", client.IP())

	s.sessions.Add(client.Session())
	defer func() {
		s.channels.LeaveChannel(client.Session())
		s.sessions.Remove(client.Session())
		s.log.Info("connection closed", "remote", client.IP())
	}()

	s.readLoop(ctx, client, conn)
}

// readLoop drains frames from the connection until it closes or a fatal
// error occurs. Short read deadlines double as the keep-alive timer: a quiet
// connection gets a ping after the write-idle interval and is dropped once
// the read-idle interval passes with no traffic at all.
func (s *Server) readLoop(ctx context.Context, client *Client, conn net.Conn) {
	decoder := protocol.NewDecoder()
	lastRead := time.Now()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.WriteIdle())); err != nil {
			return
		}

		buf := s.readPool.Get(constants.DefaultReadBufSize)
		n, err := conn.Read(buf)
		if n > 0 {
			lastRead = time.Now()
			decoder.Feed(buf[:n])
		}
		s.readPool.Put(buf)

		if n > 0 {
			if !s.drainFrames(ctx, client, decoder) {
				return
			}
			if decoder.Selected() == protocol.ProtocolBNFTP {
				if err := s.files.Serve(conn, decoder.Rest()); err != nil {
					s.log.Info("file transfer failed", "remote", client.IP(), "err", err)
				}
				return
			}
		}

		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				return
			}
			if time.Since(lastRead) >= s.cfg.ReadIdle() {
				s.log.Info("dropping idle connection", "remote", client.IP())
				return
			}
			if err := client.SendKeepalive(); err != nil {
				return
			}
		}
	}
}

// drainFrames dispatches every complete frame buffered in the decoder.
// Returns false on a fatal framing error; handler errors are logged and the
// connection keeps going.
func (s *Server) drainFrames(ctx context.Context, client *Client, decoder *protocol.Decoder) bool {
	for {
		frame, ok, err := decoder.Next()
		if err != nil {
			s.log.Info("closing connection on framing error", "remote", client.IP(), "err", err)
			return false
		}
		if !ok {
			return true
		}
		if err := s.dispatcher.Dispatch(ctx, client, frame); err != nil {
			s.log.Error("failed to handle message",
				"type", fmt.Sprintf("0x%02X", frame.Type), "remote", client.IP(), "err", err)
		}
	}
}
