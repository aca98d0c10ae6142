package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrNoVideoStream is returned when ffprobe finds no video stream in the container.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrFrameSize is returned when a frame does not match the stream geometry.
	ErrFrameSize = errors.New("frame size does not match stream")
)

// FFmpegCodec implements Codec by piping raw RGBA frames through the ffmpeg CLI.
type FFmpegCodec struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	// videoCodec and videoTag select the fixed output codec.
	videoCodec string
	videoTag   string
	// fallbackFPS is used when the source reports no usable frame rate.
	fallbackFPS float64
}

// CodecOption configures an FFmpegCodec.
type CodecOption func(*FFmpegCodec)

// WithVideoCodec sets the encoder name and optional fourcc tag for outputs.
func WithVideoCodec(codec, tag string) CodecOption {
	return func(c *FFmpegCodec) {
		if codec != "" {
			c.videoCodec = codec
		}
		c.videoTag = tag
	}
}

// WithFallbackFPS sets the frame rate used when the source has none.
func WithFallbackFPS(fps float64) CodecOption {
	return func(c *FFmpegCodec) {
		if fps > 0 {
			c.fallbackFPS = fps
		}
	}
}

// NewFFmpegCodec creates a new FFmpegCodec.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
// Outputs are encoded as mpeg4 tagged XVID at the source frame rate unless overridden.
func NewFFmpegCodec(ffmpegPath, ffprobePath string, opts ...CodecOption) *FFmpegCodec {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	c := &FFmpegCodec{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		videoCodec:  "mpeg4",
		videoTag:    "XVID",
		fallbackFPS: 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Probe reads the geometry and frame rate of the first video stream in path.
func (c *FFmpegCodec) Probe(ctx context.Context, path string) (StreamInfo, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate",
		"-of", "json",
		path,
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffprobePath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return StreamInfo{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return StreamInfo{}, &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    fmt.Errorf("%w: %w", ErrFFprobeExecution, err),
		}
	}

	return parseProbeOutput(stdout.Bytes(), c.fallbackFPS)
}

// probeOutput mirrors the subset of ffprobe JSON we consume.
type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

func parseProbeOutput(data []byte, fallbackFPS float64) (StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return StreamInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return StreamInfo{}, ErrNoVideoStream
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return StreamInfo{}, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, s.Width, s.Height)
	}

	fps := parseFrameRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseFrameRate(s.RFrameRate)
	}
	if fps <= 0 {
		fps = fallbackFPS
	}

	return StreamInfo{Width: s.Width, Height: s.Height, FPS: fps}, nil
}

// parseFrameRate parses ffprobe rates such as "25/1" or "30000/1001".
// It returns 0 for anything unusable, including "0/0".
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// OpenReader probes src and starts an ffmpeg process decoding it to raw RGBA on stdout.
func (c *FFmpegCodec) OpenReader(ctx context.Context, src string) (FrameReader, StreamInfo, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, StreamInfo{}, fmt.Errorf("stat source: %w", err)
	}

	info, err := c.Probe(ctx, src)
	if err != nil {
		return nil, StreamInfo{}, err
	}

	args := []string{
		"-v", "error",
		"-i", src, // Input file
		"-f", "rawvideo", // Raw frames on stdout
		"-pix_fmt", "rgba",
		"-",
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, StreamInfo{}, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, StreamInfo{}, fmt.Errorf("start ffmpeg decoder: %w", err)
	}

	return &ffmpegFrameReader{
		cmd:    cmd,
		args:   args,
		stdout: stdout,
		stderr: stderr,
		width:  info.Width,
		height: info.Height,
	}, info, nil
}

// OpenWriter creates dst and starts an ffmpeg process encoding raw RGBA from stdin.
func (c *FFmpegCodec) OpenWriter(ctx context.Context, dst string, info StreamInfo) (FrameWriter, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, info.Width, info.Height)
	}
	fps := info.FPS
	if fps <= 0 {
		fps = c.fallbackFPS
	}

	// Fail early on an unwritable destination rather than on the first frame.
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 - dst is derived by the pipeline
	if err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	_ = f.Close()

	args := []string{
		"-v", "error",
		"-y", // Overwrite output file
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-", // Frames on stdin
		"-c:v", c.videoCodec,
	}
	if c.videoTag != "" {
		args = append(args, "-vtag", c.videoTag)
	}
	args = append(args, "-pix_fmt", "yuv420p", dst)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("start ffmpeg encoder: %w", err)
	}

	return &ffmpegFrameWriter{
		cmd:    cmd,
		args:   args,
		stdin:  stdin,
		stderr: stderr,
		width:  info.Width,
		height: info.Height,
	}, nil
}

// ffmpegFrameReader reads fixed-size RGBA frames from a decoder process.
type ffmpegFrameReader struct {
	cmd    *exec.Cmd
	args   []string
	stdout io.ReadCloser
	stderr *bytes.Buffer
	width  int
	height int
	eof    bool
	closed bool
}

func (r *ffmpegFrameReader) ReadFrame() (*image.RGBA, error) {
	if r.eof {
		return nil, io.EOF
	}
	frame := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	if _, err := io.ReadFull(r.stdout, frame.Pix); err != nil {
		r.eof = true
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return frame, nil
}

// Close stops the decoder. If the stream was not fully consumed the
// process is killed; otherwise its exit status is reported.
func (r *ffmpegFrameReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if !r.eof {
		_ = r.cmd.Process.Kill()
		_ = r.cmd.Wait()
		return nil
	}

	if err := r.cmd.Wait(); err != nil {
		return &FFmpegError{Args: r.args, Stderr: r.stderr.String(), Err: err}
	}
	return nil
}

// ffmpegFrameWriter streams RGBA frames into an encoder process.
type ffmpegFrameWriter struct {
	cmd    *exec.Cmd
	args   []string
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	width  int
	height int
	closed bool
}

func (w *ffmpegFrameWriter) WriteFrame(frame *image.RGBA) error {
	b := frame.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize, b.Dx(), b.Dy(), w.width, w.height)
	}

	rowLen := 4 * w.width
	if frame.Stride == rowLen && len(frame.Pix) == rowLen*w.height {
		if _, err := w.stdin.Write(frame.Pix); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		return nil
	}

	// Sub-images are not contiguous; write row by row.
	for y := 0; y < w.height; y++ {
		off := frame.PixOffset(b.Min.X, b.Min.Y+y)
		if _, err := w.stdin.Write(frame.Pix[off : off+rowLen]); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	return nil
}

func (w *ffmpegFrameWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	closeErr := w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return &FFmpegError{Args: w.args, Stderr: w.stderr.String(), Err: err}
	}
	if closeErr != nil {
		return fmt.Errorf("close encoder input: %w", closeErr)
	}
	return nil
}
