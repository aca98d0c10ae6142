// Package dedup removes images whose decoded pixels are byte-identical to
// an earlier image in the input list.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"log/slog"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/mediabatch/internal/imaging"
	"github.com/maauso/mediabatch/internal/media"
)

// Fingerprint identifies decoded pixel content.
type Fingerprint [sha256.Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FingerprintOf digests the raster size and the NRGBA pixel bytes of img.
// The size is included so that two rasters with equal bytes but different
// shapes stay distinct.
func FingerprintOf(img *image.NRGBA) Fingerprint {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	hash := sha256.New()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[0:4], uint32(w))
	binary.BigEndian.PutUint32(dims[4:8], uint32(h))
	_, _ = hash.Write(dims[:])

	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		_, _ = hash.Write(img.Pix[off : off+4*w])
	}

	var fp Fingerprint
	copy(fp[:], hash.Sum(nil))
	return fp
}

// Table maps fingerprints to their representative path. Entries are only
// added, in input order, so the first path seen for a fingerprint wins.
type Table struct {
	order []Fingerprint
	paths map[Fingerprint]string
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{paths: make(map[Fingerprint]string)}
}

// Add records path as the representative of fp unless one already exists.
// It reports whether path became the representative.
func (t *Table) Add(fp Fingerprint, path string) bool {
	if _, ok := t.paths[fp]; ok {
		return false
	}
	t.paths[fp] = path
	t.order = append(t.order, fp)
	return true
}

// Representative returns the surviving path for fp.
func (t *Table) Representative(fp Fingerprint) (string, bool) {
	p, ok := t.paths[fp]
	return p, ok
}

// Len returns the number of distinct fingerprints.
func (t *Table) Len() int {
	return len(t.order)
}

// Skipped is a path excluded from the decision because it could not be
// fingerprinted or deleted.
type Skipped struct {
	Path string
	Err  error
}

// Result is the outcome of Dedupe. Kept and Removed are in input order.
type Result struct {
	Kept    []string
	Removed []string
	Skipped []Skipped
}

// Deduplicator fingerprints images and deletes duplicates.
type Deduplicator struct {
	fs      afero.Fs
	logger  *slog.Logger
	workers int
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithWorkers sets how many images are decoded concurrently.
func WithWorkers(n int) Option {
	return func(d *Deduplicator) {
		if n > 0 {
			d.workers = n
		}
	}
}

// New creates a Deduplicator operating on fsys.
func New(fsys afero.Fs, logger *slog.Logger, opts ...Option) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Deduplicator{fs: fsys, logger: logger, workers: 1}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type scan struct {
	fp  Fingerprint
	err error
}

// Dedupe keeps the first path of every distinct fingerprint and deletes
// the rest. Non-image paths are ignored. A path that fails to decode is
// reported in Skipped and is never deleted.
//
// Fingerprints may be computed concurrently, but survivors are chosen in
// a single pass over the input order after every fingerprint is known.
func (d *Deduplicator) Dedupe(ctx context.Context, paths []string) (Result, error) {
	images := make([]string, 0, len(paths))
	for _, p := range paths {
		if media.IsImage(p) {
			images = append(images, p)
		}
	}

	scans := make([]scan, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, p := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := imaging.Decode(d.fs, p)
			if err != nil {
				scans[i] = scan{err: media.NewError(media.KindDecodeError, p, err)}
				return nil
			}
			scans[i] = scan{fp: FingerprintOf(img)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	table := NewTable()
	var duplicates []string
	for i, p := range images {
		s := scans[i]
		if s.err != nil {
			d.logger.Warn("cannot fingerprint image, leaving it in place",
				slog.String("path", p),
				slog.String("error", s.err.Error()),
			)
			res.Skipped = append(res.Skipped, Skipped{Path: p, Err: s.err})
			continue
		}
		if table.Add(s.fp, p) {
			res.Kept = append(res.Kept, p)
			continue
		}
		// A path listed twice must not delete itself.
		if rep, _ := table.Representative(s.fp); rep == p {
			continue
		}
		duplicates = append(duplicates, p)
	}

	for _, p := range duplicates {
		if err := d.fs.Remove(p); err != nil {
			d.logger.Error("failed to delete duplicate",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
			res.Skipped = append(res.Skipped, Skipped{Path: p, Err: err})
			continue
		}
		d.logger.Info("deleted duplicate image", slog.String("path", p))
		res.Removed = append(res.Removed, p)
	}

	return res, nil
}
