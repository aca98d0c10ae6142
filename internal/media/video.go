package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// StreamState is the lifecycle state of one transcode.
type StreamState string

const (
	StateIdle      StreamState = "IDLE"
	StateOpened    StreamState = "OPENED"
	StateStreaming StreamState = "STREAMING"
	StateClosed    StreamState = "CLOSED"
)

// ErrInvalidStreamTransition is returned when a transcode leaves its lifecycle.
var ErrInvalidStreamTransition = errors.New("invalid stream state transition")

// streamTransitions defines which state transitions are allowed.
// Streaming loops on itself once per frame.
var streamTransitions = map[StreamState][]StreamState{
	StateIdle:      {StateOpened, StateClosed},
	StateOpened:    {StateStreaming, StateClosed},
	StateStreaming: {StateStreaming, StateClosed},
	StateClosed:    {},
}

func canTransitionStream(from, to StreamState) bool {
	for _, s := range streamTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// FrameProcessor transcodes a container frame by frame, holding at most
// one decoded frame at a time.
type FrameProcessor struct {
	codec       Codec
	logger      *slog.Logger
	openRetries int
}

// FrameProcessorOption configures a FrameProcessor.
type FrameProcessorOption func(*FrameProcessor)

// WithOpenRetries sets how many extra attempts are made when opening the
// source container fails for a reason other than a missing file.
func WithOpenRetries(n int) FrameProcessorOption {
	return func(p *FrameProcessor) {
		if n >= 0 {
			p.openRetries = n
		}
	}
}

// NewFrameProcessor creates a FrameProcessor backed by codec.
func NewFrameProcessor(codec Codec, logger *slog.Logger, opts ...FrameProcessorOption) *FrameProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &FrameProcessor{
		codec:       codec,
		logger:      logger,
		openRetries: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// transcode holds the resources of one Transcode call.
type transcode struct {
	state  StreamState
	src    string
	dst    string
	reader FrameReader
	writer FrameWriter
}

func (t *transcode) to(state StreamState) error {
	if !canTransitionStream(t.state, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStreamTransition, t.state, state)
	}
	t.state = state
	return nil
}

// Transcode streams src into dst, applying transform to every frame.
// It returns the number of frames written.
//
// Failure to open either container yields a ContainerOpenError. A read
// failure that is not a clean end of stream ends the stream early and the
// truncated output is kept. A write failure yields an EncodeError.
// Both containers are released on every return path.
func (p *FrameProcessor) Transcode(ctx context.Context, src, dst string, transform FrameTransform) (n int, err error) {
	t := &transcode{state: StateIdle, src: src, dst: dst}
	defer func() {
		if cerr := p.close(t); cerr != nil && err == nil {
			err = cerr
		}
	}()

	// Once opened, the codec processes outlive ctx so a started video is
	// always finished and finalized.
	stream := context.WithoutCancel(ctx)

	reader, info, err := p.openReader(ctx, stream, src)
	if err != nil {
		return 0, NewError(KindContainerOpenError, src, err)
	}
	t.reader = reader

	writer, err := p.codec.OpenWriter(stream, dst, info)
	if err != nil {
		return 0, NewError(KindContainerOpenError, dst, err)
	}
	t.writer = writer

	if err := t.to(StateOpened); err != nil {
		return 0, err
	}

	p.logger.Debug("video containers opened",
		slog.String("src", src),
		slog.String("dst", dst),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Float64("fps", info.FPS),
	)

	for {
		frame, err := t.reader.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Warn("video read failed, truncating output",
					slog.String("src", src),
					slog.Int("frames", n),
					slog.String("error", err.Error()),
				)
			}
			break
		}

		if err := t.to(StateStreaming); err != nil {
			return n, err
		}

		if transform != nil {
			frame = transform(frame)
		}
		if err := t.writer.WriteFrame(frame); err != nil {
			return n, NewError(KindEncodeError, dst, err)
		}
		n++
	}

	return n, nil
}

// openReader opens src, retrying transient failures. A missing source is
// persistent and is never retried.
func (p *FrameProcessor) openReader(ctx, stream context.Context, src string) (FrameReader, StreamInfo, error) {
	var lastErr error
	for attempt := 0; attempt <= p.openRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return nil, StreamInfo{}, ctx.Err()
			}
			p.logger.Info("retrying container open",
				slog.String("src", src),
				slog.Int("attempt", attempt+1),
			)
		}

		reader, info, err := p.codec.OpenReader(stream, src)
		if err == nil {
			return reader, info, nil
		}
		lastErr = err
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrNoVideoStream) || ctx.Err() != nil {
			break
		}
	}
	return nil, StreamInfo{}, lastErr
}

// close releases both containers. A finalize failure on the writer is an
// encode error; a decoder exit failure is only logged, matching the
// lenient read policy.
func (p *FrameProcessor) close(t *transcode) error {
	_ = t.to(StateClosed)

	if t.reader != nil {
		if cerr := t.reader.Close(); cerr != nil {
			p.logger.Debug("video decoder exited with error",
				slog.String("src", t.src),
				slog.String("error", cerr.Error()),
			)
		}
	}

	var err error
	if t.writer != nil {
		if cerr := t.writer.Close(); cerr != nil {
			err = NewError(KindEncodeError, t.dst, cerr)
		}
	}
	return err
}
