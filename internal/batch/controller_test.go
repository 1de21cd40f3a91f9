package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/lyalik/geo-locator/internal/dispatch"
	"github.com/lyalik/geo-locator/internal/media"
	"github.com/lyalik/geo-locator/internal/storage"
)

type fakeDispatcher struct {
	// results maps source name to the analysis to return; a missing key
	// yields an error.
	results map[string]*media.Analysis
	errs    map[string]error
	order   []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, item *media.Item, data []byte, settings media.Settings) (*media.Analysis, error) {
	f.order = append(f.order, item.SourceName)
	if err, ok := f.errs[item.SourceName]; ok {
		return nil, err
	}
	if analysis, ok := f.results[item.SourceName]; ok {
		return analysis, nil
	}
	return nil, fmt.Errorf("no scripted outcome for %s", item.SourceName)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, d ItemDispatcher) *Controller {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("creating storage: %v", err)
	}
	return NewController(d, store, nil, discardLogger())
}

func drainRun(t *testing.T, c *Controller, id string) []Update {
	t.Helper()

	updates, ok := c.Updates(id)
	if !ok {
		t.Fatalf("no update stream for batch %s", id)
	}

	var seen []Update
	for update := range updates {
		seen = append(seen, update)
	}
	return seen
}

func makeZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry: %v", err)
		}
		f.Write(data)
	}
	w.Close()
	return buf.Bytes()
}

func TestCreateBatchExpandsAndClassifies(t *testing.T) {
	c := newTestController(t, &fakeDispatcher{})

	files := []UploadedFile{
		{SourceName: "street.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")},
		{SourceName: "clip.mp4", ContentType: "video/mp4", Data: []byte("mp4")},
		{SourceName: "photos.zip", ContentType: "application/zip", Data: makeZip(t, map[string][]byte{
			"a.png": []byte("png"),
			"b.txt": []byte("text"),
		})},
	}

	view, err := c.CreateBatch(files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(view.Items) != 3 {
		t.Fatalf("expected 3 items (jpg, mp4, zipped png), got %d", len(view.Items))
	}
	if view.Status != StatusPending {
		t.Errorf("expected pending status, got %s", view.Status)
	}
	for _, item := range view.Items {
		if item.State != media.StatePending {
			t.Errorf("item %s not pending: %s", item.SourceName, item.State)
		}
	}
	if len(view.Notices) != 0 {
		t.Errorf("unexpected notices: %+v", view.Notices)
	}
}

func TestCreateBatchReportsExclusions(t *testing.T) {
	c := newTestController(t, &fakeDispatcher{})

	files := []UploadedFile{
		{SourceName: "valid.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")},
		{SourceName: "broken.zip", ContentType: "application/zip", Data: []byte("not a zip")},
		{SourceName: "notes.txt", ContentType: "text/plain", Data: []byte("text")},
	}

	view, err := c.CreateBatch(files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(view.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(view.Items))
	}
	if view.Items[0].SourceName != "valid.jpg" {
		t.Errorf("wrong item admitted: %s", view.Items[0].SourceName)
	}

	kinds := map[NoticeKind]int{}
	for _, n := range view.Notices {
		kinds[n.Kind]++
	}
	if kinds[NoticeArchiveUnreadable] != 1 {
		t.Errorf("expected one archive_unreadable notice, got %d", kinds[NoticeArchiveUnreadable])
	}
	if kinds[NoticeUnsupportedMedia] != 1 {
		t.Errorf("expected one unsupported_media_type notice, got %d", kinds[NoticeUnsupportedMedia])
	}
}

func TestCreateBatchEmptyArchiveIsDistinguished(t *testing.T) {
	c := newTestController(t, &fakeDispatcher{})

	view, err := c.CreateBatch([]UploadedFile{
		{SourceName: "docs.zip", ContentType: "application/zip", Data: makeZip(t, map[string][]byte{
			"readme.txt": []byte("text only"),
		})},
	})
	if err != nil {
		t.Fatalf("an empty archive must not be a hard failure: %v", err)
	}

	if len(view.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(view.Items))
	}
	if len(view.Notices) != 1 || view.Notices[0].Kind != NoticeEmptyArchive {
		t.Fatalf("expected a single archive_empty notice, got %+v", view.Notices)
	}
}

func TestRunProcessesSequentiallyAndIsolatesFailures(t *testing.T) {
	d := &fakeDispatcher{
		results: map[string]*media.Analysis{
			"b.jpg": {Coordinates: &media.Coordinates{Latitude: 55.75, Longitude: 37.61}, Confidence: 0.9},
			"c.jpg": {Confidence: 0.5},
		},
		errs: map[string]error{
			"a.jpg": &dispatch.AnalysisError{Kind: dispatch.FailureTransport, Message: "connection refused"},
		},
	}
	c := newTestController(t, d)

	view, err := c.CreateBatch([]UploadedFile{
		{SourceName: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
		{SourceName: "b.jpg", ContentType: "image/jpeg", Data: []byte("b")},
		{SourceName: "c.jpg", ContentType: "image/jpeg", Data: []byte("c")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.StartRun(view.ID, media.Settings{}); err != nil {
		t.Fatalf("starting run: %v", err)
	}
	drainRun(t, c, view.ID)

	if len(d.order) != 3 {
		t.Fatalf("expected the whole queue drained exactly once, got %d dispatches", len(d.order))
	}
	for i, want := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		if d.order[i] != want {
			t.Fatalf("items dispatched out of order: %v", d.order)
		}
	}

	final, _ := c.GetRun(view.ID)
	if final.Status != StatusFinished {
		t.Errorf("expected finished, got %s", final.Status)
	}
	if final.Summary == nil {
		t.Fatal("expected a summary once all items are terminal")
	}
	if final.Summary.SuccessCount != 2 || final.Summary.FailureCount != 1 {
		t.Errorf("unexpected summary: %+v", final.Summary)
	}

	for _, item := range final.Items {
		if !item.State.Terminal() {
			t.Errorf("item %s not terminal: %s", item.SourceName, item.State)
		}
		hasResult := item.Result != nil
		hasReason := item.FailureReason != ""
		if hasResult == hasReason {
			t.Errorf("item %s violates the result/failure exclusivity invariant", item.SourceName)
		}
	}
}

func TestRunProgressIsMonotonicAndExact(t *testing.T) {
	d := &fakeDispatcher{
		results: map[string]*media.Analysis{
			"a.jpg": {Confidence: 0.1},
			"c.jpg": {Confidence: 0.3},
			"d.jpg": {Confidence: 0.4},
		},
		errs: map[string]error{
			"b.jpg": &dispatch.AnalysisError{Kind: dispatch.FailureApplication, Message: "location undeterminable"},
		},
	}
	c := newTestController(t, d)

	view, _ := c.CreateBatch([]UploadedFile{
		{SourceName: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
		{SourceName: "b.jpg", ContentType: "image/jpeg", Data: []byte("b")},
		{SourceName: "c.jpg", ContentType: "image/jpeg", Data: []byte("c")},
		{SourceName: "d.jpg", ContentType: "image/jpeg", Data: []byte("d")},
	})

	if err := c.StartRun(view.ID, media.Settings{}); err != nil {
		t.Fatalf("starting run: %v", err)
	}
	updates := drainRun(t, c, view.ID)

	var fractions []float64
	for _, u := range updates {
		if u.Type != "progress" {
			continue
		}
		p := u.Data.(Progress)
		if p.Total != 4 {
			t.Errorf("expected total 4, got %d", p.Total)
		}
		want := float64(p.Settled) / float64(p.Total)
		if p.Fraction != want {
			t.Errorf("progress fraction %f != %d/%d", p.Fraction, p.Settled, p.Total)
		}
		fractions = append(fractions, p.Fraction)
	}

	if len(fractions) != 4 {
		t.Fatalf("expected 4 progress updates, got %d", len(fractions))
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress decreased: %v", fractions)
		}
	}
	if fractions[len(fractions)-1] != 1.0 {
		t.Errorf("final progress %f, want 1.0", fractions[len(fractions)-1])
	}
}

func TestRunApplicationFailureScenario(t *testing.T) {
	// Two images: the first fails with an undeterminable location, the
	// second succeeds with coordinates.
	d := &fakeDispatcher{
		results: map[string]*media.Analysis{
			"second.jpg": {Coordinates: &media.Coordinates{Latitude: 55.75, Longitude: 37.61}, Confidence: 0.9},
		},
		errs: map[string]error{
			"first.jpg": &dispatch.AnalysisError{
				Kind:       dispatch.FailureApplication,
				Message:    "location undeterminable",
				Suggestion: "accept manual coordinates",
			},
		},
	}
	c := newTestController(t, d)

	view, _ := c.CreateBatch([]UploadedFile{
		{SourceName: "first.jpg", ContentType: "image/jpeg", Data: []byte("1")},
		{SourceName: "second.jpg", ContentType: "image/jpeg", Data: []byte("2")},
	})

	if err := c.StartRun(view.ID, media.Settings{LocationHint: "Moscow"}); err != nil {
		t.Fatalf("starting run: %v", err)
	}
	drainRun(t, c, view.ID)

	final, _ := c.GetRun(view.ID)
	if final.Summary.SuccessCount != 1 || final.Summary.FailureCount != 1 {
		t.Fatalf("unexpected summary: %+v", final.Summary)
	}

	first := final.Items[0]
	if first.State != media.StateFailed || first.FailureReason == "" {
		t.Errorf("expected first item failed with a reason, got %+v", first)
	}

	second := final.Items[1]
	if second.State != media.StateCompleted || second.Result == nil {
		t.Fatalf("expected second item completed, got %+v", second)
	}
	if second.Result.Coordinates.Latitude != 55.75 || second.Result.Coordinates.Longitude != 37.61 {
		t.Errorf("unexpected coordinates: %+v", second.Result.Coordinates)
	}
}

func TestRunTimeoutFailureReason(t *testing.T) {
	d := &fakeDispatcher{
		errs: map[string]error{
			"slow.jpg": &dispatch.AnalysisError{Kind: dispatch.FailureTimeout, Message: "analysis exceeded 2m0s"},
		},
		results: map[string]*media.Analysis{
			"fast.jpg": {Confidence: 0.2},
		},
	}
	c := newTestController(t, d)

	view, _ := c.CreateBatch([]UploadedFile{
		{SourceName: "slow.jpg", ContentType: "image/jpeg", Data: []byte("s")},
		{SourceName: "fast.jpg", ContentType: "image/jpeg", Data: []byte("f")},
	})

	if err := c.StartRun(view.ID, media.Settings{}); err != nil {
		t.Fatalf("starting run: %v", err)
	}
	drainRun(t, c, view.ID)

	final, _ := c.GetRun(view.ID)
	slow := final.Items[0]
	if slow.State != media.StateFailed {
		t.Fatalf("expected timed-out item failed, got %s", slow.State)
	}
	if slow.FailureReason == "" || !bytes.Contains([]byte(slow.FailureReason), []byte("timeout")) {
		t.Errorf("expected timeout reason, got %q", slow.FailureReason)
	}

	// The controller proceeded to the next item.
	if final.Items[1].State != media.StateCompleted {
		t.Errorf("queue stalled after a timeout: %+v", final.Items[1])
	}
}

func TestStartRunTwiceFails(t *testing.T) {
	c := newTestController(t, &fakeDispatcher{results: map[string]*media.Analysis{"a.jpg": {}}})

	view, _ := c.CreateBatch([]UploadedFile{
		{SourceName: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
	})

	if err := c.StartRun(view.ID, media.Settings{}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := c.StartRun(view.ID, media.Settings{}); err == nil {
		t.Error("expected second start to fail")
	}
	drainRun(t, c, view.ID)
}

func TestDeleteBatchRemovesRun(t *testing.T) {
	c := newTestController(t, &fakeDispatcher{})

	view, _ := c.CreateBatch([]UploadedFile{
		{SourceName: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
	})

	if err := c.DeleteBatch(view.ID); err != nil {
		t.Fatalf("deleting batch: %v", err)
	}
	if _, ok := c.GetRun(view.ID); ok {
		t.Error("batch still visible after delete")
	}
	if err := c.DeleteBatch(view.ID); err == nil {
		t.Error("expected error deleting a missing batch")
	}
}
