// Package zarr reads gridded collections stored as zarr v2 arrays in a blob
// bucket. A Store implements coverage.Reader for every dataset built from the
// collection index it holds.
package zarr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TuSKan/coverage"
	"github.com/TuSKan/coverage/collection"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

const (
	DefaultIndexKey         = "collection.json"
	DefaultConcurrency      = 8
	DefaultCoordReadTimeout = 30 * time.Second
)

// Config locates a store.
type Config struct {
	// URL is a gocloud bucket URL such as file:///data/gfs or mem://.
	URL string
	// IndexKey is the key of the collection index inside the bucket.
	IndexKey string
	// Concurrency bounds the number of slabs read in parallel.
	Concurrency int
	// CoordReadTimeout bounds lazy coordinate reads, which carry no context.
	CoordReadTimeout time.Duration
	Logger           *slog.Logger
}

// Validate fills in defaults and checks the config.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("store URL is required")
	}
	if c.IndexKey == "" {
		c.IndexKey = DefaultIndexKey
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.CoordReadTimeout == 0 {
		c.CoordReadTimeout = DefaultCoordReadTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Store is an opened collection.
type Store struct {
	cfg    Config
	bucket *blob.Bucket
	coll   *collection.Collection
	log    *slog.Logger

	mu     sync.Mutex
	arrays map[string]*Array

	closeOnce sync.Once
	closeErr  error
}

var _ coverage.Reader = (*Store)(nil)

// Open opens the bucket named by cfg.URL and loads its collection index.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bucket, err := blob.OpenBucket(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	s, err := NewStore(ctx, bucket, cfg)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return s, nil
}

// NewStore loads the collection index from an already opened bucket. The
// store owns the bucket from then on.
func NewStore(ctx context.Context, bucket *blob.Bucket, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		cfg.URL = "bucket://"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reader, err := bucket.NewReader(ctx, cfg.IndexKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.IndexKey, err)
	}
	defer reader.Close()

	coll, err := collection.Load(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.IndexKey, err)
	}
	cfg.Logger.Debug("store opened", "url", cfg.URL, "collection", coll.Name, "datasets", len(coll.Datasets))
	return &Store{
		cfg:    cfg,
		bucket: bucket,
		coll:   coll,
		log:    cfg.Logger.With("store", cfg.URL),
		arrays: make(map[string]*Array),
	}, nil
}

// Collection is the loaded collection index.
func (s *Store) Collection() *collection.Collection { return s.coll }

// Datasets builds every dataset of the collection, all reading through s.
func (s *Store) Datasets(opts collection.Options) ([]*coverage.Dataset, error) {
	if opts.Logger == nil {
		opts.Logger = s.cfg.Logger
	}
	return collection.BuildAll(s.coll, s, opts)
}

func (s *Store) Location() string { return s.cfg.URL }

// Close releases the bucket. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.bucket.Close()
	})
	return s.closeErr
}

// array opens the array at key once and caches it.
func (s *Store) array(ctx context.Context, key string) (*Array, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.arrays[key]; ok {
		return a, nil
	}
	a, err := OpenArray(ctx, s.bucket, key, s.log)
	if err != nil {
		return nil, err
	}
	s.arrays[key] = a
	return a, nil
}

// varArray opens the array of a variable and checks that its dimensions are
// the variable's native coordinates followed by y and x.
func (s *Store) varArray(ctx context.Context, ref *collection.VarRef) (*Array, error) {
	a, err := s.array(ctx, ref.Variable.Path)
	if err != nil {
		return nil, err
	}
	shape := a.Shape()
	want := len(ref.Variable.Coordinates) + 2
	if len(shape) != want {
		return nil, fmt.Errorf("array %s has rank %d, variable %s needs %d", ref.Variable.Path, len(shape), ref.Variable.Name, want)
	}
	h := ref.Group.Horiz
	if shape[want-2] != h.Ny || shape[want-1] != h.Nx {
		return nil, fmt.Errorf("array %s grid %dx%d, group %s is %dx%d", ref.Variable.Path, shape[want-2], shape[want-1], ref.Group.ID, h.Ny, h.Nx)
	}
	return a, nil
}

// ReadCoordValues reads the 2D lat/lon field behind a curvilinear axis, taking
// the first record of any leading dimensions.
func (s *Store) ReadCoordValues(axis *coverage.Axis) ([]float64, error) {
	ref, ok := axis.User().(*collection.VarRef)
	if !ok {
		return nil, fmt.Errorf("%w: axis %s has no stored variable", coverage.ErrNoReader, axis.Name())
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CoordReadTimeout)
	defer cancel()

	a, err := s.varArray(ctx, ref)
	if err != nil {
		return nil, err
	}
	shape := a.Shape()
	start := make([]int, len(shape))
	region := make([]int, len(shape))
	for i := range region {
		region[i] = 1
	}
	region[len(region)-2], region[len(region)-1] = shape[len(shape)-2], shape[len(shape)-1]

	data, err := a.ReadRegion(ctx, start, region)
	if err != nil {
		return nil, fmt.Errorf("axis %s: %w", axis.Name(), err)
	}
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out, nil
}
