package registrydb

import (
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSave_RoundTrip(t *testing.T) {
	d := newTestDB(t)

	err := d.Save("cap-1", "web_search", "operational", "external", "search-server",
		map[string]any{"required": []any{"query"}}, map[string]string{"owner": "s4"}, "searches the web")
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	records, err := d.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	r := records[0]
	if r.ID != "cap-1" || r.Name != "web_search" || r.SourceServer != "search-server" {
		t.Errorf("record = %+v, want id/name/server cap-1/web_search/search-server", r)
	}
	if r.Metadata["owner"] != "s4" {
		t.Errorf("Metadata[owner] = %q, want s4", r.Metadata["owner"])
	}
	if required, _ := r.Schema["required"].([]any); len(required) != 1 || required[0] != "query" {
		t.Errorf("Schema[required] = %v, want [query]", r.Schema["required"])
	}
}

func TestSave_UpsertsById(t *testing.T) {
	d := newTestDB(t)

	if err := d.Save("cap-1", "v1", "operational", "local", "", nil, nil, ""); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := d.Save("cap-1", "v2", "operational", "local", "", nil, nil, ""); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	records, err := d.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1 (upsert, not insert)", len(records))
	}
	if records[0].Name != "v2" {
		t.Errorf("Name = %q, want v2 (last write wins)", records[0].Name)
	}
}

func TestDelete_RemovesRecord(t *testing.T) {
	d := newTestDB(t)

	if err := d.Save("cap-1", "web_search", "operational", "external", "srv", nil, nil, ""); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := d.Delete("cap-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	records, err := d.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0 after delete", len(records))
	}
}

func TestDelete_MissingIDIsNoOp(t *testing.T) {
	d := newTestDB(t)
	if err := d.Delete("does-not-exist"); err != nil {
		t.Errorf("Delete() of missing id error: %v, want nil", err)
	}
}

func TestList_EmptyWhenNoRecords(t *testing.T) {
	d := newTestDB(t)
	records, err := d.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}
