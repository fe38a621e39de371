// Command trisum finds every row triple (a, b, c) from three datasets whose
// column-wise sum equals a target vector, and writes the matches to a text
// file (mirrored to stdout) and optionally to SQLite or Postgres.
//
// Usage:
//
//	trisum -a A.txt -b B.txt -c C.txt -columns 40 -lambda 180 -workers 8
//
// Build structures can be checkpointed to a local directory, S3 (optionally
// with DynamoDB-committed pointers) or MinIO, and resumed with -resume latest.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/trisum"
	"github.com/hupe1980/trisum/blobstore"
	miniostore "github.com/hupe1980/trisum/blobstore/minio"
	s3store "github.com/hupe1980/trisum/blobstore/s3"
	"github.com/hupe1980/trisum/checkpoint"
	"github.com/hupe1980/trisum/codec"
	"github.com/hupe1980/trisum/dataset"
	"github.com/hupe1980/trisum/resource"
	"github.com/hupe1980/trisum/row"
	"github.com/hupe1980/trisum/sink"
	"github.com/hupe1980/trisum/sink/postgres"
	"github.com/hupe1980/trisum/sink/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "trisum:", err)
		os.Exit(1)
	}
}

// summary is printed with -stats.
type summary struct {
	Strategy   string                   `json:"strategy"`
	Rows       [3]int                   `json:"rows"`
	Workers    int                      `json:"workers"`
	Matches    int                      `json:"matches"`
	Resumed    bool                     `json:"resumed"`
	Checkpoint string                   `json:"checkpoint,omitempty"`
	Pruned     []string                 `json:"pruned,omitempty"`
	Load       time.Duration            `json:"load"`
	Stats      trisum.Stats             `json:"stats"`
	Metrics    trisum.BasicMetricsStats `json:"metrics"`
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args, getenv, stderr)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, stderr)

	strategy, err := trisum.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	solverCfg := trisum.Config{
		Columns:  cfg.Columns,
		Lambda:   cfg.Lambda,
		Workers:  cfg.Workers,
		Strategy: strategy,
	}
	if err := solverCfg.Validate(); err != nil {
		return err
	}

	start := time.Now()
	ds, err := loadDatasets(cfg)
	if err != nil {
		return err
	}
	loadTime := time.Since(start)
	logger.InfoContext(ctx, "datasets loaded",
		"a", len(ds.A), "b", len(ds.B), "c", len(ds.C),
		"columns", cfg.Columns, "duration", loadTime)

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   cfg.MemoryLimit,
		IOLimitBytesPerSec: cfg.IOLimit,
	})
	metrics := &trisum.BasicMetricsCollector{}

	opts := []trisum.Option{
		trisum.WithLogger(logger),
		trisum.WithMetricsCollector(metrics),
		trisum.WithResourceController(rc),
	}

	bs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("checkpoint backend %s: %w", cfg.CheckpointBackend, err)
	}
	var store *checkpoint.Store
	if bs != nil {
		comp, err := checkpoint.ParseCompression(cfg.Compression)
		if err != nil {
			return err
		}
		store = checkpoint.NewStore(bs, func(o *checkpoint.Options) {
			o.Compression = comp
			o.Logger = logger.Logger
			o.Resource = rc
		})
		opts = append(opts,
			trisum.WithCheckpointStore(store),
			trisum.WithResume(cfg.Resume),
			trisum.WithCheckpointLabel(cfg.Label),
		)
	} else if cfg.Resume != "" {
		return errors.New("-resume requires a checkpoint backend")
	}

	out, err := openSinks(ctx, cfg, stdout)
	if err != nil {
		return err
	}
	opts = append(opts, trisum.WithSink(out))
	if cfg.Sort {
		opts = append(opts, trisum.WithSortedOutput())
	}

	solver, err := trisum.New(solverCfg, opts...)
	if err != nil {
		_ = out.Close()
		return err
	}

	res, err := solver.Solve(ctx, ds)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close results: %w", cerr)
	}
	if err != nil {
		return err
	}

	sum := summary{
		Strategy: strategy.String(),
		Rows:     [3]int{len(ds.A), len(ds.B), len(ds.C)},
		Workers:  res.Workers,
		Matches:  len(res.Triples),
		Resumed:  res.Resumed,
		Load:     loadTime,
		Stats:    res.Stats,
	}
	if res.Checkpoint != nil {
		sum.Checkpoint = res.Checkpoint.Name
	}

	if store != nil && cfg.Keep > 0 {
		kind := checkpoint.KindIndex
		if strategy != trisum.StrategyIndex {
			kind = checkpoint.KindDiffs
		}
		sum.Pruned, err = store.Prune(ctx, kind, cfg.Keep)
		if err != nil {
			logger.WarnContext(ctx, "checkpoint prune failed", "error", err)
		}
	}

	if cfg.Stats {
		sum.Metrics = metrics.GetStats()
		c, err := lookupCodec(cfg.Codec)
		if err != nil {
			return err
		}
		data, err := codec.MarshalIndent(c, sum, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stderr, string(data))
	}
	return nil
}

func newLogger(cfg cliConfig, w io.Writer) *trisum.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return trisum.NewLogger(slog.NewJSONHandler(w, hopts))
	}
	return trisum.NewLogger(slog.NewTextHandler(w, hopts))
}

func loadDatasets(cfg cliConfig) (trisum.Datasets, error) {
	opts := dataset.Options{Columns: cfg.Columns, Comment: cfg.Comment}
	if cfg.Strict {
		opts.ExtraColumns = dataset.Reject
	}

	var ds trisum.Datasets
	for _, in := range []struct {
		path string
		dst  *[]row.Vector
	}{{cfg.A, &ds.A}, {cfg.B, &ds.B}, {cfg.C, &ds.C}} {
		rows, err := dataset.Load(in.path, opts)
		if err != nil {
			return trisum.Datasets{}, err
		}
		*in.dst = rows
	}
	return ds, nil
}

// openBlobStore returns nil for the "none" backend.
func openBlobStore(ctx context.Context, cfg cliConfig) (blobstore.BlobStore, error) {
	switch cfg.CheckpointBackend {
	case "", "none":
		return nil, nil
	case "local":
		return blobstore.NewLocalStore(cfg.CheckpointDir), nil
	case "s3", "ddb":
		if cfg.Bucket == "" {
			return nil, errors.New("-bucket is required")
		}
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		store := s3store.NewStore(client, cfg.Bucket, cfg.Prefix)
		if cfg.CheckpointBackend == "s3" {
			return store, nil
		}
		if cfg.DDBTable == "" {
			return nil, errors.New("-ddb-table is required")
		}
		return s3store.NewDDBCommitStore(store, dynamodb.NewFromConfig(awsCfg), cfg.DDBTable, ""), nil
	case "minio":
		if cfg.Bucket == "" || cfg.Endpoint == "" {
			return nil, errors.New("-bucket and -endpoint are required")
		}
		client, err := miniostore.NewClient(miniostore.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			Secure:    !cfg.Insecure,
		})
		if err != nil {
			return nil, err
		}
		store := miniostore.NewStore(client, cfg.Bucket, cfg.Prefix)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.CheckpointBackend)
	}
}

func loadAWSConfig(ctx context.Context, cfg cliConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

// openSinks opens every configured result sink. On error, sinks opened so far
// are closed.
func openSinks(ctx context.Context, cfg cliConfig, stdout io.Writer) (sink.Sink, error) {
	var sinks []sink.Sink
	fail := func(err error) (sink.Sink, error) {
		_ = sink.Multi(sinks...).Close()
		return nil, err
	}

	var mirrors []io.Writer
	if !cfg.Quiet {
		mirrors = append(mirrors, stdout)
	}
	switch {
	case cfg.Out != "":
		ts, err := sink.CreateTextFile(cfg.Out, mirrors...)
		if err != nil {
			return fail(fmt.Errorf("open %s: %w", cfg.Out, err))
		}
		sinks = append(sinks, ts)
	case !cfg.Quiet:
		sinks = append(sinks, sink.NewTextSink(stdout))
	}

	if cfg.SQLite != "" {
		s, err := sqlite.Open(ctx, cfg.SQLite, func(o *sqlite.Options) {
			o.Table = cfg.Table
			o.Run = cfg.Run
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Postgres != "" {
		s, err := postgres.Connect(ctx, cfg.Postgres, func(o *postgres.Options) {
			o.Table = cfg.Table
			o.Run = cfg.Run
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}

	if len(sinks) == 0 {
		return sink.Discard, nil
	}
	return sink.Multi(sinks...), nil
}
