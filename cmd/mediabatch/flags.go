package main

// Flags map one-to-one onto pipeline.OperationConfig. Positional arguments
// are the input paths; a JSON config file can supply the base configuration
// which individual flags then override.

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/maauso/mediabatch/internal/imaging"
	"github.com/maauso/mediabatch/internal/media"
	"github.com/maauso/mediabatch/internal/pipeline"
)

var errNoPaths = errors.New("need at least one input path")

// options is the parsed command line.
type options struct {
	Paths   []string
	Config  pipeline.OperationConfig
	Publish bool
}

// overlayFlags collects the text overlay flags before they become a
// pipeline.TextOverlay.
type overlayFlags struct {
	text string
	font string
	x, y int
	size int
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("mediabatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: mediabatch [flags] path...")
		fs.PrintDefaults()
	}

	var (
		opts       options
		configFile string
		variant    string
		overlay    overlayFlags
	)
	cfg := &opts.Config

	fs.StringVar(&configFile, "config", "", "JSON file with the operation config; flags override it")
	defineImageFlags(fs, cfg)
	defineEditorFlags(fs, cfg, &overlay)
	fs.BoolVar(&cfg.RemoveDuplicates, "dedup", false, "Delete outputs whose pixels duplicate an earlier output")
	fs.BoolVar(&cfg.ProcessVideo, "video", false, "Process video files frame by frame")
	fs.StringVar(&variant, "variant", "", "Output naming: smartvision | pixedit (default from VARIANT)")
	fs.BoolVar(&opts.Publish, "publish", false, "Publish surviving outputs after the run")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if configFile != "" {
		base, err := readConfigFile(configFile)
		if err != nil {
			return options{}, err
		}
		// Flags given on the command line win over the file.
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		*cfg = mergeConfig(base, *cfg, set)
	}

	if variant != "" {
		v, err := media.ParseVariant(variant)
		if err != nil {
			return options{}, err
		}
		cfg.Variant = v
	}
	if overlay.text != "" {
		cfg.TextOverlay = overlay.textOverlay()
	}

	opts.Paths = make([]string, 0, fs.NArg())
	for _, p := range fs.Args() {
		abs, err := filepath.Abs(p)
		if err != nil {
			return options{}, fmt.Errorf("resolve %s: %w", p, err)
		}
		opts.Paths = append(opts.Paths, abs)
	}
	if len(opts.Paths) == 0 {
		fs.Usage()
		return options{}, errNoPaths
	}

	if err := cfg.Validate(); err != nil {
		return options{}, err
	}
	return opts, nil
}

// defineImageFlags registers the detail and resize flags.
func defineImageFlags(fs *flag.FlagSet, cfg *pipeline.OperationConfig) {
	fs.BoolVar(&cfg.EnhanceDetail, "enhance", false, "Apply the detail enhancement filter")
	fs.BoolVar(&cfg.ResizeToOriginal, "resize", false, "Enable the resize step (keeps size unless -width/-height/-halve)")
	fs.IntVar(&cfg.ResizeTarget.Width, "width", 0, "Resize target width in pixels")
	fs.IntVar(&cfg.ResizeTarget.Height, "height", 0, "Resize target height in pixels")
	fs.BoolVar(&cfg.HalveSize, "halve", false, "Resize to half the current size")
}

// defineEditorFlags registers brightness, contrast and overlay flags.
func defineEditorFlags(fs *flag.FlagSet, cfg *pipeline.OperationConfig, o *overlayFlags) {
	fs.Func("brightness", "Multiply every channel by this factor", factorFunc(&cfg.AdjustBrightness, &cfg.BrightnessFactor))
	fs.Func("contrast", "Scale distance from the mean luminance by this factor", factorFunc(&cfg.AdjustContrast, &cfg.ContrastFactor))
	fs.StringVar(&o.text, "text", "", "Caption drawn on every image")
	fs.StringVar(&o.font, "font", "", "TrueType/OpenType font file for -text")
	fs.IntVar(&o.x, "text-x", imaging.DefaultTextX, "Caption anchor X")
	fs.IntVar(&o.y, "text-y", imaging.DefaultTextY, "Caption anchor Y")
	fs.IntVar(&o.size, "text-size", imaging.DefaultTextSize, "Caption size in points")
}

func factorFunc(enable *bool, factor *float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid factor %q", s)
		}
		*enable = true
		*factor = v
		return nil
	}
}

func (o overlayFlags) textOverlay() *pipeline.TextOverlay {
	return &pipeline.TextOverlay{
		Content:  o.text,
		FontRef:  o.font,
		Position: &pipeline.Point{X: o.x, Y: o.y},
		Size:     o.size,
	}
}

func readConfigFile(path string) (pipeline.OperationConfig, error) {
	var cfg pipeline.OperationConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// mergeConfig returns base with the fields of flags whose flag was set.
func mergeConfig(base, flags pipeline.OperationConfig, set map[string]bool) pipeline.OperationConfig {
	out := base
	if set["enhance"] {
		out.EnhanceDetail = flags.EnhanceDetail
	}
	if set["resize"] {
		out.ResizeToOriginal = flags.ResizeToOriginal
	}
	if set["width"] {
		out.ResizeTarget.Width = flags.ResizeTarget.Width
	}
	if set["height"] {
		out.ResizeTarget.Height = flags.ResizeTarget.Height
	}
	if set["halve"] {
		out.HalveSize = flags.HalveSize
	}
	if set["dedup"] {
		out.RemoveDuplicates = flags.RemoveDuplicates
	}
	if set["video"] {
		out.ProcessVideo = flags.ProcessVideo
	}
	if set["brightness"] {
		out.AdjustBrightness, out.BrightnessFactor = true, flags.BrightnessFactor
	}
	if set["contrast"] {
		out.AdjustContrast, out.ContrastFactor = true, flags.ContrastFactor
	}
	return out
}
