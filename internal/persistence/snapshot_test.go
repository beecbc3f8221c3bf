package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gram12321/tradergame04-sub000/internal/economy"
)

func TestSnapshotRoundTrip(t *testing.T) {
	cat := testCatalog()
	st := testState(cat)
	path := filepath.Join(t.TempDir(), "sim.snap.zst")

	if err := WriteSnapshot(path, st); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadSnapshot(path, cat)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if got.Tick != st.Tick || got.NextSeq != st.NextSeq {
		t.Fatalf("meta tick=%d seq=%d, want %d and %d", got.Tick, got.NextSeq, st.Tick, st.NextSeq)
	}
	if len(got.Companies) != len(st.Companies) || len(got.Facilities) != len(st.Facilities) {
		t.Fatalf("loaded %d companies and %d facilities, want %d and %d",
			len(got.Companies), len(got.Facilities), len(st.Companies), len(st.Facilities))
	}

	prod := findFacility(t, got, st.Facilities[1].ID)
	if prod.City != cat.Cities["Milltown"] || prod.Recipe != cat.Recipes["bakery"] {
		t.Fatal("catalog references not re-linked")
	}
	if !prod.Producing || len(prod.BatchInputs) != 1 || prod.BatchInputs[0].Amount != 2.5 {
		t.Fatalf("batch state: producing=%v inputs=%+v", prod.Producing, prod.BatchInputs)
	}

	office := findFacility(t, got, st.Facilities[0].ID)
	if len(office.Controlled) != 3 {
		t.Fatalf("controlled set: %v", office.Controlled)
	}

	var ext *economy.TradeRoute
	for _, r := range got.Routes {
		if r.ID == "route-ext" {
			ext = r
		}
	}
	if ext == nil || ext.LastFailedTick == nil || *ext.LastFailedTick != 41 {
		t.Fatalf("external route: %+v", ext)
	}
}

func TestSnapshotRejectsUnknownVersion(t *testing.T) {
	cat := testCatalog()
	st := testState(cat)
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.snap.zst")
	if err := WriteSnapshot(path, st); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A truncated file is not a snapshot.
	bad := filepath.Join(dir, "bad.snap.zst")
	if err := os.WriteFile(bad, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(bad, cat); err == nil {
		t.Fatal("garbage file should fail to read")
	}
}
