// Package server exposes an imagedb.DB over a trivial TCP wire protocol:
// fixed-size binary frames copied straight off the stream.
package server

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hupe1980/imagedb"
	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/persistence"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:9548"

// Options contains configuration options for the server.
type Options struct {
	// Addr is the TCP listen address.
	Addr string

	// SnapshotPath, if set, is where OpSave writes the database.
	SnapshotPath string

	// AcceptRate limits accepted connections per second. Zero disables
	// limiting.
	AcceptRate rate.Limit

	// AcceptBurst is the burst size of the accept limiter.
	AcceptBurst int

	// Logger receives structured connection and request logs. Nil disables
	// logging.
	Logger *slog.Logger
}

// DefaultOptions contains the default server configuration.
var DefaultOptions = Options{
	Addr:        DefaultAddr,
	AcceptRate:  0,
	AcceptBurst: 16,
}

// Server serves an imagedb.DB over TCP.
type Server struct {
	db      *imagedb.DB
	opts    Options
	logger  *slog.Logger
	limiter *rate.Limiter

	mu sync.Mutex
	ln net.Listener
}

// New creates a new server for db.
func New(db *imagedb.DB, optFns ...func(o *Options)) *Server {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var limiter *rate.Limiter
	if opts.AcceptRate > 0 {
		burst := opts.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.AcceptRate, burst)
	}

	return &Server{
		db:      db,
		opts:    opts,
		logger:  logger,
		limiter: limiter,
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections on ln until ctx is cancelled. Each connection
// is handled on its own goroutine; writes to the database serialize on the
// database lock.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())

	var wg sync.WaitGroup
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				break
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			wg.Wait()
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// handle serves one connection until EOF or error.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("connection opened", "remote", remote)

	for {
		var op [1]byte
		if _, err := io.ReadFull(conn, op[:]); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("connection closed", "remote", remote, "error", err)
			}
			return
		}

		var err error
		switch op[0] {
		case OpPing:
			err = writeStatus(conn, StatusOK)
		case OpAdd:
			err = s.handleAdd(ctx, conn)
		case OpRemove:
			err = s.handleRemove(ctx, conn)
		case OpQuery:
			err = s.handleQuery(ctx, conn)
		case OpSave:
			err = s.handleSave(conn)
		default:
			s.logger.Warn("unknown opcode", "remote", remote, "opcode", op[0])
			_ = writeStatus(conn, StatusError)
			return
		}
		if err != nil {
			s.logger.Debug("request failed", "remote", remote, "error", err)
			return
		}
	}
}

func (s *Server) handleAdd(ctx context.Context, conn net.Conn) error {
	rec, err := readRecord(conn)
	if err != nil {
		return err
	}

	uid, err := s.db.Add(ctx, imagedb.Image{
		UserID: rec.UserID,
		Sig:    rec.Sig,
		DC:     rec.DC,
		Res:    rec.Res,
	})
	return writeAddResponse(conn, statusOf(err), uid)
}

func (s *Server) handleRemove(ctx context.Context, conn net.Conn) error {
	uid, err := readUint64(conn)
	if err != nil {
		return err
	}

	img, err := s.db.Remove(ctx, core.UserID(uid))
	return writeRemoveResponse(conn, statusOf(err), persistence.Record{
		UserID: img.UserID,
		Sig:    img.Sig,
		DC:     img.DC,
		Res:    img.Res,
	})
}

func (s *Server) handleQuery(ctx context.Context, conn net.Conn) error {
	var kbuf [4]byte
	if _, err := io.ReadFull(conn, kbuf[:]); err != nil {
		return err
	}
	k := int(binary.LittleEndian.Uint32(kbuf[:]))

	rec, err := readRecord(conn)
	if err != nil {
		return err
	}

	results := s.db.Query(ctx, imagedb.QueryParams{
		Probe: signatureDescriptor(rec),
		K:     k,
	})
	return writeQueryResponse(conn, results)
}

func (s *Server) handleSave(conn net.Conn) error {
	if s.opts.SnapshotPath == "" {
		return writeStatus(conn, StatusError)
	}
	if err := s.db.SaveToFile(s.opts.SnapshotPath); err != nil {
		s.logger.Error("snapshot failed", "path", s.opts.SnapshotPath, "error", err)
		return writeStatus(conn, StatusError)
	}
	return writeStatus(conn, StatusOK)
}

func statusOf(err error) byte {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, imagedb.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, imagedb.ErrAlreadyExists):
		return StatusAlreadyExists
	case errors.Is(err, imagedb.ErrCapacityExceeded):
		return StatusCapacity
	default:
		return StatusError
	}
}
