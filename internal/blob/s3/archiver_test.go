package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

type upload struct {
	path        string
	body        []byte
	contentType string
	multipart   bool
}

type fakeWriter struct {
	uploads []upload
	failOn  int // 1-based upload number that fails; 0 never fails
	err     error
}

func (w *fakeWriter) record(path string, data io.Reader, contentType string, multipart bool) error {
	if w.failOn == len(w.uploads)+1 {
		return w.err
	}
	body, _ := io.ReadAll(data)
	w.uploads = append(w.uploads, upload{path: path, body: body, contentType: contentType, multipart: multipart})
	return nil
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	return w.record(path, data, contentType, false)
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	return w.record(path, data, "", true)
}

// fakeHistory behaves like the snapshot table: rows are kept in fetch order
// and deletes remove them.
type fakeHistory struct {
	points []domain.AssetPoint
	lists  int
}

func (h *fakeHistory) OldestBefore(_ context.Context, before time.Time) (time.Time, error) {
	for _, p := range h.points {
		if p.FetchedAt.Before(before) {
			return p.FetchedAt, nil
		}
	}
	return time.Time{}, domain.ErrNotFound
}

func (h *fakeHistory) ListBefore(_ context.Context, before time.Time) ([]domain.AssetPoint, error) {
	h.lists++
	var out []domain.AssetPoint
	for _, p := range h.points {
		if p.FetchedAt.Before(before) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (h *fakeHistory) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var kept []domain.AssetPoint
	for _, p := range h.points {
		if !p.FetchedAt.Before(before) {
			kept = append(kept, p)
		}
	}
	n := int64(len(h.points) - len(kept))
	h.points = kept
	return n, nil
}

func point(id string, at time.Time) domain.AssetPoint {
	return domain.AssetPoint{Asset: domain.Asset{ID: id}, CycleID: "c-" + at.Format("0102T1504"), FetchedAt: at}
}

func decodeIDs(t *testing.T, body []byte) []string {
	t.Helper()
	sc := bufio.NewScanner(bytes.NewReader(body))
	var ids []string
	for sc.Scan() {
		var p domain.AssetPoint
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		ids = append(ids, p.ID)
	}
	return ids
}

func TestArchiveSnapshots(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{points: []domain.AssetPoint{
		point("bitcoin", cutoff.Add(-time.Hour)),
		point("ethereum", cutoff.Add(-time.Hour)),
		point("bitcoin", cutoff.Add(time.Hour)),
	}}
	writer := &fakeWriter{}

	n, err := NewSnapshotArchiver(writer, history).ArchiveSnapshots(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.Len(t, history.points, 1)
	assert.Equal(t, cutoff.Add(time.Hour), history.points[0].FetchedAt)

	require.Len(t, writer.uploads, 1)
	up := writer.uploads[0]
	assert.False(t, up.multipart)
	assert.Equal(t, "snapshots/2026/01/31/before-20260201T000000Z.jsonl", up.path)
	assert.Equal(t, jsonlContentType, up.contentType)
	assert.Equal(t, []string{"bitcoin", "ethereum"}, decodeIDs(t, up.body))
}

func TestArchiveSnapshotsBatchesByDay(t *testing.T) {
	cutoff := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{points: []domain.AssetPoint{
		point("bitcoin", time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)),
		point("bitcoin", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)),
		point("ethereum", time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)),
		point("bitcoin", time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC)),
		point("bitcoin", time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC)),
	}}
	writer := &fakeWriter{}

	n, err := NewSnapshotArchiver(writer, history).ArchiveSnapshots(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, 3, history.lists)

	var paths []string
	for _, up := range writer.uploads {
		paths = append(paths, up.path)
	}
	assert.Equal(t, []string{
		"snapshots/2026/03/01/before-20260302T000000Z.jsonl",
		"snapshots/2026/03/03/before-20260304T000000Z.jsonl",
		"snapshots/2026/03/04/before-20260304T120000Z.jsonl",
	}, paths)
	assert.Equal(t, []string{"bitcoin", "ethereum"}, decodeIDs(t, writer.uploads[1].body))

	// rows past the cutoff stay
	require.Len(t, history.points, 1)
	assert.Equal(t, 13, history.points[0].FetchedAt.Hour())
}

func TestArchiveSnapshotsNothingToDo(t *testing.T) {
	history := &fakeHistory{}
	writer := &fakeWriter{}

	n, err := NewSnapshotArchiver(writer, history).ArchiveSnapshots(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.uploads)
}

func TestArchiveSnapshotsKeepsRowsOnUploadFailure(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	history := &fakeHistory{points: []domain.AssetPoint{point("bitcoin", day1), point("bitcoin", day2)}}
	writer := &fakeWriter{failOn: 2, err: errors.New("bucket gone")}

	n, err := NewSnapshotArchiver(writer, history).ArchiveSnapshots(context.Background(), day2.Add(time.Hour))
	assert.Error(t, err)
	// the first day made it; the second stays for the next run
	assert.Equal(t, int64(1), n)
	require.Len(t, history.points, 1)
	assert.Equal(t, day2, history.points[0].FetchedAt)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "https://s3.example.test", normaliseEndpoint("s3.example.test", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}
