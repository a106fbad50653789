package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/interviewkit/diffsync/internal/patch"
	"github.com/interviewkit/diffsync/internal/sink"
)

// openTestJournal returns an initialized journal in a temp directory.
func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	if err := j.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return j
}

func makeBatch(at time.Time, edits ...[3]string) *sink.Batch {
	b := sink.NewBatch("session-1", at)
	for _, e := range edits {
		id, prev, cur := e[0], e[1], e[2]
		name := patch.DisplayName(id)
		b.Records = append(b.Records, sink.Record{
			DocumentID:  id,
			DisplayName: name,
			Patch:       patch.Unified(name, prev, cur),
			Stats:       patch.Measure(prev, cur),
		})
	}
	return b
}

func TestInitSchema_Idempotent(t *testing.T) {
	j := openTestJournal(t)
	if err := j.InitSchema(context.Background()); err != nil {
		t.Errorf("second InitSchema() failed: %v", err)
	}

	for _, table := range []string{"batches", "records"} {
		var count int
		err := j.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestSend_And_Records(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	b := makeBatch(time.Now(),
		[3]string{"/p/a.go", "one\n", "two\n"},
		[3]string{"/p/b.go", "", "x\n"},
	)
	if err := j.Send(ctx, b); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	// A repeated batch is not duplicated.
	if err := j.Send(ctx, b); err != nil {
		t.Fatalf("second Send() failed: %v", err)
	}

	recs, err := j.Records(ctx, b.ID)
	if err != nil {
		t.Fatalf("Records() failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Records() returned %d records, want 2", len(recs))
	}
	if recs[0] != b.Records[0] || recs[1] != b.Records[1] {
		t.Errorf("Records() = %+v, want %+v", recs, b.Records)
	}

	c, err := j.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if c != (Counts{Batches: 1, Records: 2, Documents: 2}) {
		t.Errorf("Counts() = %+v", c)
	}
}

func TestRecords_UnknownBatch(t *testing.T) {
	j := openTestJournal(t)
	_, err := j.Records(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Records() error = %v, want ErrNotFound", err)
	}
}

func TestListBatches(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batches := []*sink.Batch{
		makeBatch(base, [3]string{"a", "1", "2"}),
		makeBatch(base.Add(time.Hour), [3]string{"b", "1", "2"}),
		makeBatch(base.Add(2*time.Hour), [3]string{"a", "2", "3"}, [3]string{"b", "2", "3"}),
	}
	for _, b := range batches {
		if err := j.Send(ctx, b); err != nil {
			t.Fatalf("Send() failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{batches[2].ID, batches[1].ID, batches[0].ID}},
		{"since", Filter{Since: base.Add(time.Hour)}, []string{batches[2].ID, batches[1].ID}},
		{"document", Filter{DocumentID: "a"}, []string{batches[2].ID, batches[0].ID}},
		{"limit", Filter{Limit: 1}, []string{batches[2].ID}},
		{"no match", Filter{DocumentID: "zzz"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.ListBatches(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListBatches() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListBatches() returned %d batches, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("batch[%d] = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}

	all, _ := j.ListBatches(ctx, Filter{})
	if !all[2].CreatedAt.Equal(base) || all[0].RecordCount != 2 {
		t.Errorf("summary = %+v", all[2])
	}
}

func TestHistoryAndReplay(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	versions := []string{
		"package main\n",
		"package main\n\nfunc main() {}\n",
		"package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n",
		"package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"bye\")\n}",
	}

	now := time.Now()
	for i := 1; i < len(versions); i++ {
		b := makeBatch(now.Add(time.Duration(i)*time.Second),
			[3]string{"/w/main.go", versions[i-1], versions[i]},
			[3]string{"/w/other.go", "x", "y"},
		)
		if err := j.Send(ctx, b); err != nil {
			t.Fatalf("Send() failed: %v", err)
		}
	}

	hist, err := j.History(ctx, "/w/main.go")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("History() returned %d entries, want 3", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].CreatedAt.Before(hist[i-1].CreatedAt) {
			t.Errorf("history out of order at %d", i)
		}
	}

	got, err := j.Replay(ctx, "/w/main.go", versions[0])
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if got != versions[len(versions)-1] {
		t.Errorf("Replay() = %q, want %q", got, versions[len(versions)-1])
	}

	if _, err := j.Replay(ctx, "/w/main.go", "wrong base\n"); err == nil {
		t.Error("Replay() with a wrong base should fail")
	}
	if _, err := j.Replay(ctx, "/w/none.go", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Replay() unknown document error = %v, want ErrNotFound", err)
	}
}

func TestHistory_OrdersByBatchID(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	now := time.Now()
	first := makeBatch(now, [3]string{"main.go", "a\n", "b\n"})
	second := makeBatch(now.Add(time.Second), [3]string{"main.go", "b\n", "c\n"})

	// overlapping dispatches: the later batch is written first
	for _, b := range []*sink.Batch{second, first} {
		if err := j.Send(ctx, b); err != nil {
			t.Fatalf("Send() failed: %v", err)
		}
	}

	hist, err := j.History(ctx, "main.go")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(hist) != 2 || hist[0].BatchID != first.ID || hist[1].BatchID != second.ID {
		t.Fatalf("History() = %+v, want %s then %s", hist, first.ID, second.ID)
	}

	got, err := j.Replay(ctx, "main.go", "a\n")
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if got != "c\n" {
		t.Errorf("Replay() = %q, want %q", got, "c\n")
	}

	list, err := j.ListBatches(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListBatches() failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("ListBatches() newest = %+v, want %s", list, second.ID)
	}
}

func TestJournalIsSink(t *testing.T) {
	var _ sink.Sink = (*Journal)(nil)
}

func BenchmarkSend(b *testing.B) {
	j, err := Open(filepath.Join(b.TempDir(), "journal.db"))
	if err != nil {
		b.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()
	ctx := context.Background()
	if err := j.InitSchema(ctx); err != nil {
		b.Fatalf("InitSchema() failed: %v", err)
	}

	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch := makeBatch(now.Add(time.Duration(i)*time.Millisecond),
			[3]string{"a.go", "x\n", "y\n"},
			[3]string{"b.go", "1\n2\n", "1\n3\n"},
		)
		if err := j.Send(ctx, batch); err != nil {
			b.Fatalf("Send() failed: %v", err)
		}
	}
}
