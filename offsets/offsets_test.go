package offsets

import (
	"testing"

	"github.com/mkocikowski/kafkaclient"
)

func TestUnitPositions(t *testing.T) {
	s := NewStore()
	if _, ok := s.Position("foo", 0); ok {
		t.Fatal("expected no position")
	}
	s.SetPosition("foo", 0, 10)
	s.SetPosition("foo", 1, 20)
	s.SetPosition("bar", 0, 30)
	if offset, _ := s.Position("foo", 0); offset != 10 {
		t.Fatal(offset)
	}
	snapshot := s.Snapshot()
	if snapshot["foo"][1] != 20 || snapshot["bar"][0] != 30 {
		t.Fatalf("%+v", snapshot)
	}
	s.Drop("foo", 0)
	if _, ok := s.Position("foo", 0); ok {
		t.Fatal("expected position to be dropped")
	}
	if offset, _ := s.Position("foo", 1); offset != 20 {
		t.Fatal(offset)
	}
	s.DropAll()
	if len(s.Snapshot()) != 0 {
		t.Fatal("expected empty store")
	}
}

func TestUnitCheckCommit(t *testing.T) {
	s := NewStore()
	// no position tracked: commit of externally obtained offsets is fine
	if err := s.CheckCommit("foo", 0, 100); err != nil {
		t.Fatal(err)
	}
	s.SetPosition("foo", 0, 10)
	// committing at or below the position is fine
	if err := s.CheckCommit("foo", 0, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.CheckCommit("foo", 0, 3); err != nil {
		t.Fatal(err)
	}
	// committing past the position is not
	err := s.CheckCommit("foo", 0, 11)
	if err == nil {
		t.Fatal("expected error")
	}
	if kafkaclient.Code(err) != kafkaclient.ERR_LOCAL_STATE {
		t.Fatal(err)
	}
}

func TestUnitCommitted(t *testing.T) {
	s := NewStore()
	if _, ok := s.Committed("foo", 0); ok {
		t.Fatal("expected no committed offset")
	}
	s.SetCommitted("foo", 0, 5)
	if offset, _ := s.Committed("foo", 0); offset != 5 {
		t.Fatal(offset)
	}
}

func TestUnitWatermarksAndLag(t *testing.T) {
	s := NewStore()
	if lag := s.Lag("foo", 0); lag != -1 {
		t.Fatal(lag)
	}
	s.SetPosition("foo", 0, 10)
	if lag := s.Lag("foo", 0); lag != -1 {
		t.Fatal(lag)
	}
	s.SetWatermarks("foo", 0, 0, 25)
	if lag := s.Lag("foo", 0); lag != 15 {
		t.Fatal(lag)
	}
	w, ok := s.Watermarks("foo", 0)
	if !ok || w.Low != 0 || w.High != 25 {
		t.Fatalf("%+v", w)
	}
	if w.At.IsZero() {
		t.Fatal("expected watermarks to be timestamped")
	}
	// position past high watermark (stale marks): lag clamps to zero
	s.SetPosition("foo", 0, 30)
	if lag := s.Lag("foo", 0); lag != 0 {
		t.Fatal(lag)
	}
}

func TestUnitDirty(t *testing.T) {
	s := NewStore()
	s.SetPosition("foo", 0, 10)
	s.SetPosition("foo", 1, 20)
	s.SetCommitted("foo", 0, 10) // flushed
	s.SetCommitted("foo", 1, 15) // behind
	dirty := s.Dirty()
	if _, ok := dirty["foo"][0]; ok {
		t.Fatalf("%+v", dirty)
	}
	if dirty["foo"][1] != 20 {
		t.Fatalf("%+v", dirty)
	}
	// never committed partitions are dirty
	s.SetPosition("bar", 0, 1)
	if dirty := s.Dirty(); dirty["bar"][0] != 1 {
		t.Fatalf("%+v", dirty)
	}
}
