package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voxkey/internal/common/fsutil"
	"voxkey/internal/readiness"
	"voxkey/internal/registry"
)

// DefaultMaxParallel bounds concurrent file transfers when unset.
const DefaultMaxParallel = 4

const partialPrefix = ".part-"

// reportStep is the minimum per-file fraction change between progress callbacks.
const reportStep = 0.01

// FileSetConfig configures a FileSet downloader.
type FileSetConfig struct {
	BaseURL     string
	Oracle      *readiness.Oracle
	Client      *http.Client
	MaxParallel int
	Logger      *zerolog.Logger
}

// FileSet downloads every manifest entry of a raw file-set model from
// {BaseURL}/{bundle}/{file} into the oracle's model directory.
type FileSet struct {
	baseURL     string
	oracle      *readiness.Oracle
	client      *http.Client
	maxParallel int
	log         zerolog.Logger
}

// NewFileSet constructs a FileSet downloader.
func NewFileSet(cfg FileSetConfig) *FileSet {
	f := &FileSet{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		oracle:      cfg.Oracle,
		client:      cfg.Client,
		maxParallel: cfg.MaxParallel,
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.maxParallel <= 0 {
		f.maxParallel = DefaultMaxParallel
	}
	if cfg.Logger != nil {
		f.log = cfg.Logger.With().Str("component", "download.fileset").Logger()
	} else {
		f.log = zerolog.Nop()
	}
	return f
}

// Download fetches the files of d that are not yet valid on disk. Files
// already placed by an earlier, interrupted session count as completed.
func (f *FileSet) Download(ctx context.Context, d registry.Descriptor, sink Sink) error {
	if d.Kind != registry.KindFileSet {
		return fmt.Errorf("model %s is not a file-set model", d.ID)
	}
	sink = sinkOrNop(sink)
	if f.oracle.IsReady(d) {
		f.log.Debug().Str("model", d.ID).Msg("already on disk; skipping transfers")
		return nil
	}
	dir := f.oracle.ModelDir(d.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StorageError{Path: dir, Err: err}
	}
	removePartials(dir)

	refs := d.Manifest.Files()
	missing := f.oracle.Missing(d)
	tr := newTracker(len(refs), len(refs)-len(missing))
	sink.Progress(tr.fraction())
	f.log.Info().Str("model", d.ID).Int("files", len(refs)).Int("missing", len(missing)).Msg("file-set download started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxParallel)
	for i, ref := range missing {
		g.Go(func() error {
			return f.transfer(gctx, d, i, ref, tr, sink)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		done, total := tr.counts()
		f.log.Info().Str("model", d.ID).Int("completed", done).Int("total", total).Msg("file-set download cancelled")
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	if miss := f.oracle.Missing(d); len(miss) > 0 {
		return &TransferError{Ref: miss[0], Err: fmt.Errorf("%d files missing after transfer", len(miss))}
	}
	f.log.Info().Str("model", d.ID).Msg("file-set download complete")
	return nil
}

// transfer fetches one manifest entry into a temp file in the model
// directory, validates its size, and moves it into place.
func (f *FileSet) transfer(ctx context.Context, d registry.Descriptor, i int, ref registry.FileRef, tr *tracker, sink Sink) error {
	u := f.fileURL(ref)
	fail := func(reason string, err error) error {
		tr.drop(i)
		if ctx.Err() == nil {
			filesRejectedTotal.WithLabelValues(d.ID, reason).Inc()
		}
		return &TransferError{Ref: ref, URL: u, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fail("request", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fail("request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fail("status", fmt.Errorf("unexpected HTTP status: %s", resp.Status))
	}

	tmp, err := os.CreateTemp(f.oracle.ModelDir(d.ID), partialPrefix+"*")
	if err != nil {
		tr.drop(i)
		return &StorageError{Path: f.oracle.ModelDir(d.ID), Err: err}
	}
	pr := &progressReader{r: resp.Body, total: resp.ContentLength, report: func(frac float64) {
		sink.Progress(tr.update(i, frac))
	}}
	n, copyErr := io.Copy(tmp, pr)
	closeErr := tmp.Close()
	bytesReceivedTotal.Add(float64(n))
	if copyErr != nil {
		os.Remove(tmp.Name())
		return fail("body", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return fail("body", closeErr)
	}
	if n <= f.oracle.MinFileBytes() {
		os.Remove(tmp.Name())
		return fail("too_small", fmt.Errorf("%w: %d bytes", errTooSmall, n))
	}

	dst := f.oracle.FilePath(d.ID, ref)
	if err := fsutil.ReplaceFile(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		tr.drop(i)
		return &StorageError{Path: dst, Err: err}
	}
	filesAcceptedTotal.WithLabelValues(d.ID).Inc()
	sink.Progress(tr.complete(i))

	if f.oracle.BundleReady(d.ID, bundleOf(d, ref.Bundle)) {
		f.log.Debug().Str("model", d.ID).Str("bundle", ref.Bundle).Msg("bundle complete")
	}
	// rescan the whole model: files may also arrive or vanish outside this session
	ready := f.oracle.IsReady(d)
	if rs, ok := sink.(ReadinessSink); ok {
		rs.Readiness(ready)
	}
	return nil
}

func (f *FileSet) fileURL(ref registry.FileRef) string {
	parts := strings.Split(ref.Bundle+"/"+ref.Path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return f.baseURL + "/" + strings.Join(parts, "/")
}

func bundleOf(d registry.Descriptor, name string) registry.Bundle {
	for _, b := range d.Manifest.Bundles {
		if b.Name == name {
			return b
		}
	}
	return registry.Bundle{Name: name}
}

// progressReader reports the fraction of an announced body read so far.
// Without a Content-Length the fraction stays 0 until the file completes.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	reported float64
	report   func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 && n > 0 {
		frac := float64(p.read) / float64(p.total)
		if frac-p.reported >= reportStep || (frac >= 1 && p.reported < 1) {
			p.reported = frac
			p.report(frac)
		}
	}
	return n, err
}

// removePartials deletes temp files left in dir by an interrupted process.
func removePartials(dir string) {
	matches, _ := filepath.Glob(filepath.Join(dir, partialPrefix+"*"))
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
