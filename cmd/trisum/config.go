package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/hupe1980/trisum/codec"
)

// envPrefix prefixes the environment variable of every flag:
// -checkpoint-dir is read from TRISUM_CHECKPOINT_DIR.
const envPrefix = "TRISUM_"

// cliConfig is the CLI configuration. Values come from, in increasing
// precedence: defaults, the -config JSON file, TRISUM_* environment
// variables and command-line flags.
type cliConfig struct {
	A string `json:"a"`
	B string `json:"b"`
	C string `json:"c"`

	Columns  int    `json:"columns"`
	Lambda   int64  `json:"lambda"`
	Workers  int    `json:"workers"`
	Strategy string `json:"strategy"`
	Strict   bool   `json:"strict"`
	Sort     bool   `json:"sort"`
	Comment  string `json:"comment"`

	Out   string `json:"out"`
	Quiet bool   `json:"quiet"`

	CheckpointBackend string `json:"checkpoint_backend"`
	CheckpointDir     string `json:"checkpoint_dir"`
	Bucket            string `json:"bucket"`
	Prefix            string `json:"prefix"`
	Endpoint          string `json:"endpoint"`
	Region            string `json:"region"`
	AccessKey         string `json:"access_key"`
	SecretKey         string `json:"secret_key"`
	Insecure          bool   `json:"insecure"`
	DDBTable          string `json:"ddb_table"`
	Resume            string `json:"resume"`
	Label             string `json:"label"`
	Compression       string `json:"compression"`
	Keep              int    `json:"keep"`

	SQLite   string `json:"sqlite"`
	Postgres string `json:"postgres"`
	Table    string `json:"table"`
	Run      string `json:"run"`

	MemoryLimit int64 `json:"memory_limit"`
	IOLimit     int64 `json:"io_limit"`

	LogFormat string `json:"log_format"`
	Verbose   bool   `json:"verbose"`
	Stats     bool   `json:"stats"`
	Codec     string `json:"codec"`
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		A:                 "data/A.txt",
		B:                 "data/B.txt",
		C:                 "data/C.txt",
		Columns:           40,
		Lambda:            180,
		Workers:           runtime.NumCPU(),
		Strategy:          "index",
		Out:               "results/matches.txt",
		CheckpointBackend: "none",
		CheckpointDir:     "checkpoints",
		Compression:       "zstd",
		Table:             "matches",
		LogFormat:         "text",
		Codec:             codec.Default.Name(),
	}
}

func newFlagSet(cfg *cliConfig, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("trisum", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.String("config", "", "JSON config file")

	fs.StringVar(&cfg.A, "a", cfg.A, "dataset A path (.zst, .lz4 and .gz are decompressed)")
	fs.StringVar(&cfg.B, "b", cfg.B, "dataset B path")
	fs.StringVar(&cfg.C, "c", cfg.C, "dataset C path")
	fs.IntVar(&cfg.Columns, "columns", cfg.Columns, "values per row")
	fs.Int64Var(&cfg.Lambda, "lambda", cfg.Lambda, "per-column target sum")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "chunks per phase")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "index, difference or filtered")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "reject rows with extra columns instead of truncating")
	fs.StringVar(&cfg.Comment, "comment", cfg.Comment, `skip input lines starting with this prefix (e.g. "#")`)
	fs.BoolVar(&cfg.Sort, "sort", cfg.Sort, "order results by (C, A, B) row index")

	fs.StringVar(&cfg.Out, "out", cfg.Out, "result file (empty disables)")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "do not mirror results to stdout")

	fs.StringVar(&cfg.CheckpointBackend, "checkpoint-backend", cfg.CheckpointBackend, "none, local, s3, ddb or minio")
	fs.StringVar(&cfg.CheckpointDir, "checkpoint-dir", cfg.CheckpointDir, "local checkpoint directory")
	fs.StringVar(&cfg.Bucket, "bucket", cfg.Bucket, "s3/minio bucket")
	fs.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "s3/minio key prefix")
	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "s3 endpoint override or minio host:port")
	fs.StringVar(&cfg.Region, "region", cfg.Region, "s3/minio region")
	fs.StringVar(&cfg.AccessKey, "access-key", cfg.AccessKey, "minio access key")
	fs.StringVar(&cfg.SecretKey, "secret-key", cfg.SecretKey, "minio secret key")
	fs.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "use plain http for minio")
	fs.StringVar(&cfg.DDBTable, "ddb-table", cfg.DDBTable, "DynamoDB table for checkpoint pointers (ddb backend)")
	fs.StringVar(&cfg.Resume, "resume", cfg.Resume, `checkpoint to resume from ("latest", a label or a blob name)`)
	fs.StringVar(&cfg.Label, "label", cfg.Label, "checkpoint label (default: UTC timestamp)")
	fs.StringVar(&cfg.Compression, "compression", cfg.Compression, "checkpoint compression: none, lz4 or zstd")
	fs.IntVar(&cfg.Keep, "keep", cfg.Keep, "prune all but the newest N checkpoints after the run (0 keeps all)")

	fs.StringVar(&cfg.SQLite, "sqlite", cfg.SQLite, "also write results to this SQLite database")
	fs.StringVar(&cfg.Postgres, "postgres", cfg.Postgres, "also COPY results into Postgres (DSN)")
	fs.StringVar(&cfg.Table, "table", cfg.Table, "SQL result table")
	fs.StringVar(&cfg.Run, "run", cfg.Run, "run label stored with SQL results")

	fs.Int64Var(&cfg.MemoryLimit, "memory-limit", cfg.MemoryLimit, "build structure memory budget in bytes (0 is unlimited)")
	fs.Int64Var(&cfg.IOLimit, "io-limit", cfg.IOLimit, "checkpoint IO limit in bytes/s (0 is unlimited)")

	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "debug logging")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "print run statistics as JSON to stderr")
	fs.StringVar(&cfg.Codec, "codec", cfg.Codec, "JSON codec for -config and -stats: "+strings.Join(codec.Names(), ", "))
	return fs
}

// loadConfig resolves the configuration for args.
func loadConfig(args []string, getenv func(string) string, output io.Writer) (cliConfig, error) {
	// The first pass only finds -config and -codec.
	scratch := defaultCLIConfig()
	pre := newFlagSet(&scratch, io.Discard)
	if err := pre.Parse(args); err != nil {
		// Report the error (and usage) once, from the real flag set below.
		if errors.Is(err, flag.ErrHelp) {
			newFlagSet(&scratch, output).Usage()
		}
		return cliConfig{}, err
	}
	path := pre.Lookup("config").Value.String()
	if path == "" {
		path = getenv(envPrefix + "CONFIG")
	}

	cfg := defaultCLIConfig()
	if path != "" {
		name := scratch.Codec
		if !isSet(pre, "codec") {
			if v := getenv(envPrefix + "CODEC"); v != "" {
				name = v
			}
		}
		c, err := lookupCodec(name)
		if err != nil {
			return cliConfig{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return cliConfig{}, fmt.Errorf("read config: %w", err)
		}
		if err := c.Unmarshal(data, &cfg); err != nil {
			return cliConfig{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	fs := newFlagSet(&cfg, output)
	var envErr error
	fs.VisitAll(func(f *flag.Flag) {
		if envErr != nil || f.Name == "config" {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v := getenv(name); v != "" {
			if err := fs.Set(f.Name, v); err != nil {
				envErr = fmt.Errorf("%s: %w", name, err)
			}
		}
	})
	if envErr != nil {
		return cliConfig{}, envErr
	}

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	if fs.NArg() > 0 {
		return cliConfig{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if _, err := lookupCodec(cfg.Codec); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func lookupCodec(name string) (codec.Codec, error) {
	c, ok := codec.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (want one of %s)", name, strings.Join(codec.Names(), ", "))
	}
	return c, nil
}
