package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// SnapshotHistory is the subset of domain.SnapshotStore the archiver needs.
type SnapshotHistory interface {
	OldestBefore(ctx context.Context, before time.Time) (time.Time, error)
	ListBefore(ctx context.Context, before time.Time) ([]domain.AssetPoint, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Compile-time interface check.
var _ domain.Archiver = (*SnapshotArchiver)(nil)

// SnapshotArchiver moves old snapshot rows to object storage as JSON Lines
// and deletes them from the primary store once the upload has succeeded.
// Rows are archived one UTC day at a time so a large backlog never has to
// fit in memory at once.
type SnapshotArchiver struct {
	writer  domain.BlobWriter
	history SnapshotHistory
}

// NewSnapshotArchiver creates a SnapshotArchiver.
func NewSnapshotArchiver(writer domain.BlobWriter, history SnapshotHistory) *SnapshotArchiver {
	return &SnapshotArchiver{writer: writer, history: history}
}

// ArchiveSnapshots uploads every observation older than before, one object
// per UTC day of data, and removes each day's rows after its upload
// succeeds. It returns the number of rows archived. A failure stops the run
// and leaves the unarchived days in place; days already uploaded stay
// deleted.
func (a *SnapshotArchiver) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		oldest, err := a.history.OldestBefore(ctx, before)
		if errors.Is(err, domain.ErrNotFound) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("s3blob: find oldest snapshot: %w", err)
		}

		end := oldest.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		if end.After(before) {
			end = before
		}

		n, err := a.archiveBatch(ctx, end)
		if err != nil {
			return total, err
		}
		total += n
	}
}

// archiveBatch archives the rows older than end. Callers pick end so that
// the batch spans at most one day.
func (a *SnapshotArchiver) archiveBatch(ctx context.Context, end time.Time) (int64, error) {
	points, err := a.history.ListBefore(ctx, end)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list snapshots: %w", err)
	}
	if len(points) == 0 {
		return 0, fmt.Errorf("s3blob: no snapshots before %s", end.Format(time.RFC3339))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range points {
		if err := enc.Encode(points[i]); err != nil {
			return 0, fmt.Errorf("s3blob: encode snapshot row: %w", err)
		}
	}

	path := ArchivePath(points[0].FetchedAt, end)
	if int64(buf.Len()) > MinPartSize {
		err = a.writer.PutMultipart(ctx, path, &buf, MinPartSize)
	} else {
		err = a.writer.Put(ctx, path, &buf, jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: upload %s: %w", path, err)
	}

	if _, err := a.history.DeleteBefore(ctx, end); err != nil {
		return 0, fmt.Errorf("s3blob: delete archived snapshots: %w", err)
	}
	return int64(len(points)), nil
}

// ArchivePath returns the object key for the rows of day that were fetched
// before end.
func ArchivePath(day, end time.Time) string {
	day = day.UTC()
	return fmt.Sprintf("snapshots/%04d/%02d/%02d/before-%s.jsonl",
		day.Year(), int(day.Month()), day.Day(),
		end.UTC().Format("20060102T150405Z"))
}
