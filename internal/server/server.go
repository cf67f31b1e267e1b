/*
Package server runs the astrafs connection loop.

Each accepted connection carries exactly one request and receives
exactly one response (success or error) before being closed. The
per-connection state machine is Accepted -> Decoding -> Dispatching ->
Responding -> Closed; a failure while decoding or dispatching jumps
straight to Responding with an error payload. Connections are handled
in their own goroutines, so the recorder and the in-memory hubs take
locks.
*/
package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"astrafs-server/internal/config"
	"astrafs-server/internal/fsops"
	"astrafs-server/internal/proto"
	"astrafs-server/internal/recorder"
)

type Server struct {
	cfg     config.Config
	rootAbs string
	rec     *recorder.Recorder
	logs    *logHub
	stats   *statsHub
}

func New(cfg config.Config, rec *recorder.Recorder) (*Server, error) {
	rootAbs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", cfg.Root, err)
	}
	return &Server{
		cfg:     cfg,
		rootAbs: rootAbs,
		rec:     rec,
		logs:    newLogHub(1024),
		stats:   newStatsHub(),
	}, nil
}

// Root returns the absolute sandbox root.
func (s *Server) Root() string { return s.rootAbs }

// Stats returns a snapshot of the request counters.
func (s *Server) Stats() StatsSnapshot { return s.stats.snapshot() }

// RecentRequests returns up to limit recent request records, oldest
// first; limit <= 0 returns everything retained.
func (s *Server) RecentRequests(limit int) []LogEntry { return s.logs.snapshot(limit) }

// Serve accepts connections on ln until the listener is closed. Accept
// failures are logged and the loop continues; a closed listener ends
// the loop. The caller owns ln (binding early so bind failures surface
// before serving starts).
func (s *Server) Serve(ln net.Listener) error {
	s.rec.Recordf("started server on address %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.rec.RecordError(fmt.Errorf("accept: %w", err))
			continue
		}
		go s.handleConn(conn)
	}

	snap := s.stats.snapshot()
	s.rec.Recordf("shutting down server: served %d requests (%d errors)", snap.TotalReq, snap.TotalErr)
	return nil
}

// handleConn runs one connection from Accepted through Closed. The
// connection always receives exactly one response once decoding has
// been attempted; response write failures are swallowed since there is
// no further channel to report them through.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	start := time.Now()
	le := LogEntry{
		ConnID:     uuid.NewString(),
		TimeUnixMs: start.UnixMilli(),
		RemoteAddr: conn.RemoteAddr().String(),
		Op:         0xFF, // echoes as OP_255 when decoding fails before the op byte
	}
	s.rec.Recordf("handling connection %s from %s", le.ConnID, le.RemoteAddr)

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	req, err := proto.ReadRequest(br)
	if err == nil {
		le.Op = req.Op
		le.Path = req.Path
		err = s.dispatch(bw, req)
	}
	le.OpName = proto.OpName(le.Op)

	le.Status = proto.StatusOK
	if err != nil {
		le.Status = proto.StatusError
		le.Err = err.Error()
		s.rec.RecordError(err)
		_ = proto.WriteError(bw, err.Error())
	}
	_ = bw.Flush() // best-effort; the client may already be gone

	le.DurationMs = time.Since(start).Milliseconds()
	s.record(le)
}

// dispatch resolves the request path and executes the operation,
// writing the success payload to w. Nothing is written when an error
// is returned, so the caller can still send the error response.
func (s *Server) dispatch(w *bufio.Writer, req proto.Request) error {
	resolved, err := fsops.Resolve(s.rootAbs, req.Path, s.cfg.Compat.AllowPathEscape)
	if err != nil {
		return err
	}
	s.rec.Recordf("received request for file %s operation %d", resolved, req.Op)

	switch req.Op {
	case proto.OpExists:
		_ = proto.WriteExists(w, fsops.Exists(resolved))
		s.rec.Recordf("successfully processed request for file %s", resolved)

	case proto.OpRead:
		data, err := fsops.ReadFile(resolved)
		if err != nil {
			return err
		}
		s.rec.Recordf("got file of size %d from path %s", len(data), resolved)
		_ = proto.WriteFileData(w, data)

	case proto.OpList:
		if s.cfg.Compat.GlobFilter {
			s.rec.Recordf("applying glob filter: %s/%s", resolved, req.Glob)
		} else {
			s.rec.Recordf("ignoring glob as filtering is unsupported: %s/%s", resolved, req.Glob)
		}

		paths, err := fsops.ListFiles(s.rootAbs, resolved)
		if err != nil {
			return err
		}
		if s.cfg.Compat.GlobFilter && req.Glob != "" {
			paths = filterGlob(paths, req.Glob)
		}
		s.rec.Recordf("listed %d paths from dir %s", len(paths), resolved)
		_ = proto.WriteList(w, paths)
	}
	return nil
}

// filterGlob keeps entries whose base name matches pattern. A pattern
// that fails to compile matches nothing.
func filterGlob(paths []string, pattern string) []string {
	out := paths[:0]
	for _, p := range paths {
		if ok, err := path.Match(pattern, path.Base(p)); err == nil && ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) record(le LogEntry) {
	s.logs.add(le)
	s.stats.add(le.Op, le.Status, le.DurationMs)
}
