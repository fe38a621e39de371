package checkpoint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/trisum/blobstore"
	"github.com/hupe1980/trisum/diffset"
	"github.com/hupe1980/trisum/internal/hash"
	"github.com/hupe1980/trisum/pairindex"
	"github.com/hupe1980/trisum/resource"
)

// LatestName is the checkpoint name that resolves to the LATEST pointer of a kind.
const LatestName = "latest"

const labelLayout = "20060102T150405.000000000Z"

// Options configures a Store.
type Options struct {
	// Compression is applied to payloads on save. Default: zstd.
	Compression Compression

	// Logger receives save, load and rebuild events. Default: discard.
	Logger *slog.Logger

	// Resource rate-limits checkpoint IO. Nil means unlimited.
	Resource *resource.Controller

	// Clock returns the creation time of new checkpoints. Default: time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionZSTD,
		Logger:      slog.New(slog.DiscardHandler),
		Clock:       time.Now,
	}
}

// Meta binds a checkpoint to the run that produced it.
type Meta struct {
	// Label names the checkpoint. Defaults to the UTC creation timestamp.
	Label string
	// Columns is the row width of the inputs.
	Columns int
	// Fingerprint is row.Fingerprint over the inputs the structure was built from.
	Fingerprint uint64
	// Created overrides the creation time.
	Created time.Time
}

// Matches reports whether h was built from the inputs described by m.
func (m Meta) Matches(h Header) error {
	if h.Columns != m.Columns {
		return fmt.Errorf("%w: columns %d, want %d", ErrFingerprintMismatch, h.Columns, m.Columns)
	}
	if h.Fingerprint != m.Fingerprint {
		return fmt.Errorf("%w: %016x, want %016x", ErrFingerprintMismatch, h.Fingerprint, m.Fingerprint)
	}
	return nil
}

// Handle identifies a stored checkpoint.
type Handle struct {
	Name string
	Header
}

// Store persists pair indexes and difference sets on a blob store.
//
// Each checkpoint is one immutable blob named "<kind>-<label>.tsck". After a
// blob is complete, the "LATEST-<kind>" pointer blob is replaced with its name.
type Store struct {
	bs     blobstore.BlobStore
	opts   Options
	logger *slog.Logger
}

// NewStore creates a checkpoint store on bs.
func NewStore(bs blobstore.BlobStore, optFns ...func(o *Options)) *Store {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		bs:     bs,
		opts:   opts,
		logger: opts.Logger.With("component", "checkpoint"),
	}
}

// Save stores a *pairindex.Index or *diffset.Set.
func (s *Store) Save(ctx context.Context, structure any, meta Meta) (Handle, error) {
	switch v := structure.(type) {
	case *pairindex.Index:
		return s.SaveIndex(ctx, v, meta)
	case *diffset.Set:
		return s.SaveDiffs(ctx, v, meta)
	default:
		return Handle{}, fmt.Errorf("checkpoint: unsupported structure %T", structure)
	}
}

// SaveIndex stores a pair index.
func (s *Store) SaveIndex(ctx context.Context, ix *pairindex.Index, meta Meta) (Handle, error) {
	return s.save(ctx, KindIndex, encodeIndex(ix), meta)
}

// SaveDiffs stores a difference set.
func (s *Store) SaveDiffs(ctx context.Context, d *diffset.Set, meta Meta) (Handle, error) {
	raw, err := encodeDiffs(d)
	if err != nil {
		return Handle{}, fmt.Errorf("checkpoint: encode diffs: %w", err)
	}
	return s.save(ctx, KindDiffs, raw, meta)
}

func (s *Store) save(ctx context.Context, kind Kind, raw []byte, meta Meta) (Handle, error) {
	start := time.Now()

	if meta.Columns <= 0 {
		return Handle{}, fmt.Errorf("checkpoint: columns must be positive, got %d", meta.Columns)
	}
	created := meta.Created
	if created.IsZero() {
		created = s.opts.Clock()
	}
	created = created.UTC()
	label := meta.Label
	if label == "" {
		label = created.Format(labelLayout)
	}
	if err := validateLabel(label); err != nil {
		return Handle{}, err
	}

	stored, comp, err := compress(raw, s.opts.Compression)
	if err != nil {
		return Handle{}, fmt.Errorf("checkpoint: compress: %w", err)
	}

	h := Header{
		Version:     Version,
		Kind:        kind,
		Compression: comp,
		Columns:     meta.Columns,
		Fingerprint: meta.Fingerprint,
		Created:     created,
		Label:       label,
		RawSize:     int64(len(raw)),
		StoredSize:  int64(len(stored)),
		PayloadCRC:  hash.CRC32C(stored),
	}
	name := blobName(kind, label)

	if err := s.write(ctx, name, appendHeader(nil, &h), stored); err != nil {
		return Handle{}, fmt.Errorf("checkpoint: write %s: %w", name, err)
	}
	if err := s.bs.Put(ctx, kind.PointerName(), []byte(name)); err != nil {
		return Handle{}, fmt.Errorf("checkpoint: update %s: %w", kind.PointerName(), err)
	}

	s.logger.Info("checkpoint saved",
		"name", name,
		"kind", kind.String(),
		"compression", comp.String(),
		"raw_bytes", len(raw),
		"stored_bytes", len(stored),
		"duration", time.Since(start),
	)
	return Handle{Name: name, Header: h}, nil
}

func (s *Store) write(ctx context.Context, name string, header, payload []byte) error {
	w, err := s.bs.Create(ctx, name)
	if err != nil {
		return err
	}
	rw := resource.NewRateLimitedWriter(ctx, w, s.opts.Resource)
	for _, part := range [][]byte{header, payload} {
		if _, err := rw.Write(part); err != nil {
			_ = blobstore.Abort(w)
			return err
		}
	}
	return w.Close()
}

func blobName(kind Kind, label string) string {
	return kind.String() + "-" + label + Ext
}

// LoadIndex restores a pair index. name may be LatestName or a bare label.
func (s *Store) LoadIndex(ctx context.Context, name string) (*pairindex.Index, Handle, error) {
	h, raw, err := s.read(ctx, KindIndex, name)
	if err != nil {
		return nil, Handle{}, err
	}
	ix, err := decodeIndex(raw, h.Columns)
	if err != nil {
		return nil, Handle{}, fmt.Errorf("checkpoint: load %s: %w", h.Name, err)
	}
	return ix, h, nil
}

// LoadDiffs restores a difference set. name may be LatestName or a bare label.
func (s *Store) LoadDiffs(ctx context.Context, name string) (*diffset.Set, Handle, error) {
	h, raw, err := s.read(ctx, KindDiffs, name)
	if err != nil {
		return nil, Handle{}, err
	}
	d, err := decodeDiffs(raw, h.Columns)
	if err != nil {
		return nil, Handle{}, fmt.Errorf("checkpoint: load %s: %w", h.Name, err)
	}
	return d, h, nil
}

// resolve maps LatestName and bare labels to blob names.
func (s *Store) resolve(ctx context.Context, kind Kind, name string) (string, error) {
	switch {
	case strings.EqualFold(name, LatestName):
		return s.Latest(ctx, kind)
	case strings.HasSuffix(name, Ext):
		return name, nil
	default:
		return blobName(kind, name), nil
	}
}

func (s *Store) read(ctx context.Context, kind Kind, name string) (Handle, []byte, error) {
	name, err := s.resolve(ctx, kind, name)
	if err != nil {
		return Handle{}, nil, err
	}

	data, err := s.readBlob(ctx, name)
	if err != nil {
		return Handle{}, nil, fmt.Errorf("checkpoint: load %s: %w", name, err)
	}

	h, err := parseHeader(name, data)
	if err != nil {
		return Handle{}, nil, fmt.Errorf("checkpoint: load %s: %w", name, err)
	}
	if h.Kind != kind {
		return Handle{}, nil, fmt.Errorf("checkpoint: load %s: %w: got %s, want %s", name, ErrKindMismatch, h.Kind, kind)
	}
	if h.Columns <= 0 {
		return Handle{}, nil, fmt.Errorf("checkpoint: load %s: %w: columns %d", name, ErrCorrupt, h.Columns)
	}

	payload := data[h.Size():]
	if int64(len(payload)) != h.StoredSize {
		return Handle{}, nil, fmt.Errorf("checkpoint: load %s: %w: payload is %d bytes, want %d", name, ErrCorrupt, len(payload), h.StoredSize)
	}
	if got := hash.CRC32C(payload); got != h.PayloadCRC {
		return Handle{}, nil, &ChecksumMismatchError{Name: name, Section: "payload", Want: h.PayloadCRC, Got: got}
	}

	raw, err := decompress(payload, h.Compression, h.RawSize)
	if err != nil {
		return Handle{}, nil, fmt.Errorf("checkpoint: load %s: %w", name, err)
	}
	return Handle{Name: name, Header: *h}, raw, nil
}

func (s *Store) readBlob(ctx context.Context, name string) ([]byte, error) {
	blob, err := s.bs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(resource.NewRateLimitedReader(ctx, rc, s.opts.Resource))
}

// Stat reads and verifies only the header of a checkpoint.
func (s *Store) Stat(ctx context.Context, name string) (Handle, error) {
	blob, err := s.bs.Open(ctx, name)
	if err != nil {
		return Handle{}, err
	}
	defer blob.Close()

	buf := make([]byte, fixedHeaderSize)
	if err := readFullAt(ctx, blob, buf); err != nil {
		return Handle{}, fmt.Errorf("checkpoint: stat %s: %w", name, err)
	}
	if string(buf[:4]) != Magic {
		return Handle{}, fmt.Errorf("checkpoint: stat %s: %w", name, ErrInvalidMagic)
	}

	full := make([]byte, fixedHeaderSize+int(binary.LittleEndian.Uint16(buf[48:]))+4)
	if err := readFullAt(ctx, blob, full); err != nil {
		return Handle{}, fmt.Errorf("checkpoint: stat %s: %w", name, err)
	}

	h, err := parseHeader(name, full)
	if err != nil {
		return Handle{}, fmt.Errorf("checkpoint: stat %s: %w", name, err)
	}
	return Handle{Name: name, Header: *h}, nil
}

func readFullAt(ctx context.Context, blob blobstore.Blob, p []byte) error {
	n, err := blob.ReadAt(ctx, p, 0)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	return err
}

// Latest returns the name the LATEST pointer of kind refers to.
func (s *Store) Latest(ctx context.Context, kind Kind) (string, error) {
	data, err := blobstore.ReadAll(ctx, s.bs, kind.PointerName())
	if err != nil {
		return "", fmt.Errorf("checkpoint: resolve %s: %w", kind.PointerName(), err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", fmt.Errorf("checkpoint: resolve %s: %w", kind.PointerName(), blobstore.ErrNotFound)
	}
	return name, nil
}

// List returns the sorted names of all stored checkpoints.
func (s *Store) List(ctx context.Context) ([]string, error) {
	names, err := s.bs.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if strings.HasSuffix(n, Ext) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Prune deletes all but the keep newest checkpoints of kind. The checkpoint
// the LATEST pointer refers to is never deleted. It returns the deleted names.
func (s *Store) Prune(ctx context.Context, kind Kind, keep int) ([]string, error) {
	names, err := s.bs.List(ctx, kind.String()+"-")
	if err != nil {
		return nil, err
	}

	latest, err := s.Latest(ctx, kind)
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return nil, err
	}

	var handles []Handle
	for _, n := range names {
		if !strings.HasSuffix(n, Ext) {
			continue
		}
		h, err := s.Stat(ctx, n)
		if err != nil {
			s.logger.Warn("skipping unreadable checkpoint", "name", n, "error", err)
			continue
		}
		handles = append(handles, h)
	}
	slices.SortFunc(handles, func(a, b Handle) int {
		return b.Created.Compare(a.Created)
	})

	var deleted []string
	for i, h := range handles {
		if i < keep || h.Name == latest {
			continue
		}
		if err := s.bs.Delete(ctx, h.Name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, h.Name)
	}
	if len(deleted) > 0 {
		s.logger.Info("checkpoints pruned", "kind", kind.String(), "deleted", len(deleted))
	}
	return deleted, nil
}

// IndexOrBuild resumes from the named index checkpoint or calls build.
// An empty name always builds. A missing, corrupt or mismatched checkpoint is
// logged and rebuilt. The bool result reports whether the checkpoint was used.
func (s *Store) IndexOrBuild(
	ctx context.Context,
	name string,
	want Meta,
	build func(context.Context) (*pairindex.Index, error),
) (*pairindex.Index, bool, error) {
	return orBuild(ctx, s, KindIndex, name, want, s.LoadIndex, build)
}

// DiffsOrBuild resumes from the named difference-set checkpoint or calls build.
func (s *Store) DiffsOrBuild(
	ctx context.Context,
	name string,
	want Meta,
	build func(context.Context) (*diffset.Set, error),
) (*diffset.Set, bool, error) {
	return orBuild(ctx, s, KindDiffs, name, want, s.LoadDiffs, build)
}

func orBuild[T any](
	ctx context.Context,
	s *Store,
	kind Kind,
	name string,
	want Meta,
	load func(context.Context, string) (T, Handle, error),
	build func(context.Context) (T, error),
) (T, bool, error) {
	if name != "" {
		v, h, err := load(ctx, name)
		if err == nil {
			err = want.Matches(h.Header)
		}
		if err == nil {
			s.logger.Info("checkpoint resumed", "name", h.Name, "kind", kind.String(), "created", h.Created)
			return v, true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			var zero T
			return zero, false, ctxErr
		}
		s.logger.Warn("checkpoint unusable, rebuilding", "name", name, "kind", kind.String(), "error", err)
	}

	v, err := build(ctx)
	return v, false, err
}
