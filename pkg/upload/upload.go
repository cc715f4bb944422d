// Package upload drives the stash/finalize upload protocol: payloads above a
// single-request threshold are sent as a sequence of contiguous chunks, each
// carrying the server-issued filekey from the first chunk, followed by one
// finalize request.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nachtfalke/wiki-action-client/pkg/client"
)

// Prometheus metrics for upload sessions.
var (
	uploadChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wiki_upload_chunks_total",
		Help: "Total upload chunk requests issued",
	})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wiki_upload_bytes_total",
		Help: "Total payload bytes uploaded",
	})

	uploadSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_upload_sessions_total",
		Help: "Total upload sessions by outcome",
	}, []string{"outcome"})
)

// State is the upload session state.
type State int

// Session states. Any failed step moves to StateFailed and aborts; there is
// no resume, the caller restarts from the first chunk.
const (
	StateStreaming State = iota
	StateStashed
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateStashed:
		return "stashed"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultChunkSize is 4 MiB, a power of two as the protocol requires.
const DefaultChunkSize = 4 << 20

// ErrConsumed is returned when Run is called on a terminal session. Sessions
// are created per upload and destroyed at done/failed.
var ErrConsumed = errors.New("upload session already consumed")

// Result is the decoded outcome of one upload response.
type Result struct {
	// Filekey identifies the stashed file across chunk requests. Once
	// assigned by the first chunk it must be echoed unchanged.
	Filekey string

	// Success is true when the server accepted the final chunk or the
	// finalize request.
	Success bool
}

// ResultDecoder extracts the upload outcome from a response body. Supplied
// by the caller, keeping the session independent of the wire format.
type ResultDecoder func(body []byte) (Result, error)

// Executor issues one logical request. *client.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *client.Request) (*client.RawResponse, error)
}

// Config describes one upload.
type Config struct {
	// Filename is the target name on the server.
	Filename string

	// Size is the exact payload size in bytes.
	Size int64

	// ChunkSize must be a power of two. Zero selects DefaultChunkSize.
	ChunkSize int64

	// SingleRequestThreshold is the size at or below which chunking is
	// skipped and one request carries the full payload. Zero selects the
	// chunk size.
	SingleRequestThreshold int64

	// Params are applied to every request of the session (token,
	// ignorewarnings, ...).
	Params map[string]any

	// Metadata are the page parameters carried by the finalize request
	// (or the single full-payload request): comment, text, and the like.
	Metadata map[string]any

	// Decode extracts filekey and completion from each response.
	Decode ResultDecoder
}

// Session drives one upload. It must be driven by a single goroutine:
// offsets are strictly increasing and contiguous, so concurrent chunk
// issuance is not permitted.
type Session struct {
	exec   Executor
	cfg    Config
	logger zerolog.Logger

	state   State
	filekey string
	offset  int64
}

// NewSession validates the configuration and creates an upload session in
// the streaming state.
func NewSession(exec Executor, cfg Config, logger zerolog.Logger) (*Session, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("size must be positive (got %d)", cfg.Size)
	}
	if cfg.Decode == nil {
		return nil, fmt.Errorf("result decoder is required")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkSize&(cfg.ChunkSize-1) != 0 {
		return nil, fmt.Errorf("chunk size must be a power of two (got %d)", cfg.ChunkSize)
	}
	if cfg.SingleRequestThreshold == 0 {
		cfg.SingleRequestThreshold = cfg.ChunkSize
	}
	return &Session{exec: exec, cfg: cfg, logger: logger, state: StateStreaming}, nil
}

// State returns the current session state.
func (s *Session) State() State { return s.state }

// Filekey returns the server-issued stash handle, empty until the first
// chunk response. Diagnostics only: a filekey from a failed session is not
// resumable.
func (s *Session) Filekey() string { return s.filekey }

// Offset returns the next chunk's byte offset.
func (s *Session) Offset() int64 { return s.offset }

// Run streams the payload from src and finalizes the upload. Any failed
// request aborts the whole session; the caller must restart from the
// beginning with a fresh session.
func (s *Session) Run(ctx context.Context, src io.Reader) error {
	if s.state != StateStreaming || s.offset != 0 {
		return ErrConsumed
	}

	if err := s.run(ctx, src); err != nil {
		s.state = StateFailed
		uploadSessionsTotal.WithLabelValues("failed").Inc()
		s.logger.Error().
			Err(err).
			Str("filename", s.cfg.Filename).
			Int64("offset", s.offset).
			Msg("Upload session aborted")
		return err
	}

	s.state = StateDone
	uploadSessionsTotal.WithLabelValues("done").Inc()
	s.logger.Info().
		Str("filename", s.cfg.Filename).
		Int64("size", s.cfg.Size).
		Msg("Upload complete")
	return nil
}

func (s *Session) run(ctx context.Context, src io.Reader) error {
	if s.cfg.Size <= s.cfg.SingleRequestThreshold {
		return s.runSingle(ctx, src)
	}

	for s.offset < s.cfg.Size {
		want := s.cfg.ChunkSize
		if remaining := s.cfg.Size - s.offset; remaining < want {
			want = remaining
		}
		buf := make([]byte, want)
		if _, err := io.ReadFull(src, buf); err != nil {
			return fmt.Errorf("read chunk at offset %d: %w", s.offset, err)
		}
		if err := s.sendChunk(ctx, buf); err != nil {
			return err
		}
	}

	// All bytes stashed; one finalize request commits the file.
	s.state = StateStashed
	s.logger.Debug().
		Str("filename", s.cfg.Filename).
		Str("filekey", s.filekey).
		Msg("Upload stashed, finalizing")
	return s.finalize(ctx)
}

// runSingle carries the full payload and metadata in one request.
func (s *Session) runSingle(ctx context.Context, src io.Reader) error {
	buf := make([]byte, s.cfg.Size)
	if _, err := io.ReadFull(src, buf); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	req := client.NewPost("upload").AsWrite()
	if err := s.applyParams(req, s.cfg.Params, s.cfg.Metadata); err != nil {
		return err
	}
	if err := req.Set("filename", s.cfg.Filename); err != nil {
		return err
	}
	if err := req.SetFile("file", s.cfg.Filename, buf); err != nil {
		return err
	}

	resp, err := s.exec.Execute(ctx, req)
	if err != nil {
		return err
	}
	res, err := s.cfg.Decode(resp.Body)
	if err != nil {
		return fmt.Errorf("decode upload response: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("upload not accepted for %q", s.cfg.Filename)
	}
	uploadBytesTotal.Add(float64(len(buf)))
	s.offset = s.cfg.Size
	return nil
}

func (s *Session) sendChunk(ctx context.Context, chunk []byte) error {
	req := client.NewPost("upload").AsWrite()
	if err := s.applyParams(req, s.cfg.Params, nil); err != nil {
		return err
	}
	if err := req.Set("filename", s.cfg.Filename); err != nil {
		return err
	}
	if err := req.Set("stash", true); err != nil {
		return err
	}
	if err := req.Set("offset", s.offset); err != nil {
		return err
	}
	if err := req.Set("filesize", s.cfg.Size); err != nil {
		return err
	}
	if s.filekey != "" {
		// Omitted on the first chunk; required identical afterwards.
		if err := req.Set("filekey", s.filekey); err != nil {
			return err
		}
	}
	if err := req.SetFile("chunk", s.cfg.Filename, chunk); err != nil {
		return err
	}

	resp, err := s.exec.Execute(ctx, req)
	if err != nil {
		return fmt.Errorf("chunk at offset %d: %w", s.offset, err)
	}
	res, err := s.cfg.Decode(resp.Body)
	if err != nil {
		return fmt.Errorf("decode chunk response at offset %d: %w", s.offset, err)
	}
	if res.Filekey == "" {
		return fmt.Errorf("chunk at offset %d: server returned no filekey", s.offset)
	}
	if s.filekey == "" {
		s.filekey = res.Filekey
	} else if res.Filekey != s.filekey {
		return fmt.Errorf("chunk at offset %d: filekey changed from %q to %q",
			s.offset, s.filekey, res.Filekey)
	}

	s.offset += int64(len(chunk))
	uploadChunksTotal.Inc()
	uploadBytesTotal.Add(float64(len(chunk)))
	s.logger.Debug().
		Str("filename", s.cfg.Filename).
		Int64("offset", s.offset).
		Int64("size", s.cfg.Size).
		Msg("Chunk accepted")
	return nil
}

// finalize commits the stashed file with its page metadata.
func (s *Session) finalize(ctx context.Context) error {
	req := client.NewPost("upload").AsWrite()
	if err := s.applyParams(req, s.cfg.Params, s.cfg.Metadata); err != nil {
		return err
	}
	if err := req.Set("filename", s.cfg.Filename); err != nil {
		return err
	}
	if err := req.Set("filekey", s.filekey); err != nil {
		return err
	}

	resp, err := s.exec.Execute(ctx, req)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	res, err := s.cfg.Decode(resp.Body)
	if err != nil {
		return fmt.Errorf("decode finalize response: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("finalize not accepted for %q", s.cfg.Filename)
	}
	return nil
}

func (s *Session) applyParams(req *client.Request, sets ...map[string]any) error {
	for _, set := range sets {
		for k, v := range set {
			if err := req.Set(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}
