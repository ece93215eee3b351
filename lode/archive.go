// Package lode archives finished bridge sessions to a Lode dataset.
//
// Transcript messages and the final metrics snapshot are written as JSONL
// records under a Hive layout partitioned by session, day and record kind.
// Sidecar files (the raw transcript stream) land next to the partitions.
package lode

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/jsbridge/metrics"
	"github.com/pithecene-io/jsbridge/types"
)

// DefaultDataset is the dataset ID used when Config.Dataset is empty.
const DefaultDataset = "jsbridge"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"session", "day", "record_kind"}

// DeriveDay computes the partition day from the session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds archive partitioning.
type Config struct {
	// Dataset is the Lode dataset ID. Defaults to DefaultDataset.
	Dataset string
	// SessionID is the session partition key.
	SessionID string
	// Day is the day partition key (see DeriveDay).
	Day string
}

func (c Config) withDefaults() Config {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.Day == "" {
		c.Day = DeriveDay(time.Now())
	}
	return c
}

// Archive writes one session's records to a Lode dataset.
type Archive struct {
	dataset   lode.Dataset
	config    Config
	collector *metrics.Collector

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewArchive creates an archive with filesystem storage rooted at root.
func NewArchive(cfg Config, root string) (*Archive, error) {
	return NewArchiveWithFactory(cfg, lode.NewFSFactory(root))
}

// NewArchiveWithFactory creates an archive on a custom store factory.
func NewArchiveWithFactory(cfg Config, factory lode.StoreFactory) (*Archive, error) {
	cfg = cfg.withDefaults()
	ds, err := NewReadDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Archive{dataset: ds, config: cfg, storeFactory: factory}, nil
}

// WithCollector counts every write on c as a lode write success or failure.
func (a *Archive) WithCollector(c *metrics.Collector) *Archive {
	a.collector = c
	return a
}

// Config returns the archive's partitioning.
func (a *Archive) Config() Config {
	return a.config
}

// WriteTranscript writes every record as one message row. Record order is
// preserved within the batch. An empty transcript writes nothing.
func (a *Archive) WriteTranscript(ctx context.Context, records []types.TranscriptRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]any, 0, len(records))
	for i := range records {
		rows = append(rows, toMessageRecordMap(&records[i], a.config))
	}
	return a.write(ctx, rows, RecordKindMessage)
}

// WriteMetrics writes the session's final metrics as a single row.
func (a *Archive) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	return a.write(ctx, []any{toMetricsRecordMap(snap, a.config, completedAt)}, RecordKindMetrics)
}

func (a *Archive) write(ctx context.Context, rows []any, kind string) error {
	_, err := a.dataset.Write(ctx, rows, lode.Metadata{})
	if err != nil {
		a.collector.IncLodeWriteFailure()
		return WrapWriteError(err, a.partitionPath(kind))
	}
	a.collector.IncLodeWriteSuccess()
	return nil
}

// PutFile writes a sidecar file under the session's files/ prefix,
// bypassing the dataset's segment and manifest machinery. The filename must
// not contain path separators.
func (a *Archive) PutFile(ctx context.Context, filename string, data []byte) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	store, err := a.getOrCreateStore()
	if err != nil {
		return WrapInitError(err, a.config.Dataset)
	}

	path := a.FilePath(filename)
	if err := store.Put(ctx, path, bytes.NewReader(data)); err != nil {
		a.collector.IncLodeWriteFailure()
		return WrapWriteError(err, path)
	}
	a.collector.IncLodeWriteSuccess()
	return nil
}

// FilePath returns the store path of a sidecar file.
// Format: datasets/<dataset>/partitions/session=<s>/day=<d>/files/<filename>
func (a *Archive) FilePath(filename string) string {
	return fmt.Sprintf("datasets/%s/partitions/session=%s/day=%s/files/%s",
		a.config.Dataset,
		a.config.SessionID,
		a.config.Day,
		filename,
	)
}

// Close releases archive resources.
func (a *Archive) Close() error {
	// Datasets need no explicit close.
	return nil
}

func (a *Archive) getOrCreateStore() (lode.Store, error) {
	a.storeOnce.Do(func() {
		a.store, a.storeErr = a.storeFactory()
	})
	return a.store, a.storeErr
}

func (a *Archive) partitionPath(kind string) string {
	return fmt.Sprintf("%s/session=%s/day=%s/record_kind=%s",
		a.config.Dataset, a.config.SessionID, a.config.Day, kind)
}

func validateFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid sidecar filename %q", name)
	}
	for _, r := range name {
		if r == '/' || r == '\\' {
			return fmt.Errorf("invalid sidecar filename %q: contains a path separator", name)
		}
	}
	return nil
}
