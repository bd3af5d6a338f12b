package storage

import (
	"bytes"
	"testing"
)

func TestMemDBAbsentKeyIsNotAnError(t *testing.T) {
	db := NewMemDB()

	value, err := db.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != nil {
		t.Fatalf("value = %x, want nil", value)
	}
}

func TestMemDBPutGetDelete(t *testing.T) {
	db := NewMemDB()
	key, value := []byte("k"), []byte("v")

	if err := db.Put(key, value); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Fatalf("got = %x", got)
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = db.Get(key)
	if err != nil || got != nil {
		t.Fatalf("after delete: (%x, %v)", got, err)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("original")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("original")) {
		t.Fatalf("stored value aliased caller buffer: %s", got)
	}
}

func TestBatchWriteAppliesPutsAndDeletes(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("stale"), []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}

	batch := NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("stale"))
	if batch.Len() != 3 {
		t.Fatalf("len = %d", batch.Len())
	}
	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := db.Get([]byte(key))
		if err != nil || !bytes.Equal(got, []byte(want)) {
			t.Fatalf("%s: (%x, %v)", key, got, err)
		}
	}
	if got, err := db.Get([]byte("stale")); err != nil || got != nil {
		t.Fatalf("deleted key survived: (%x, %v)", got, err)
	}
}

func TestBatchCopiesKeysAndValues(t *testing.T) {
	db := NewMemDB()
	key, value := []byte("k"), []byte("v")
	batch := NewBatch()
	batch.Put(key, value)
	key[0], value[0] = 'X', 'X'

	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("batch aliased caller buffers: (%x, %v)", got, err)
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if value, err := db.Get([]byte("missing")); err != nil || value != nil {
		t.Fatalf("absent key: (%x, %v)", value, err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("get: (%x, %v)", got, err)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if value, err := db.Get([]byte("k")); err != nil || value != nil {
		t.Fatalf("after delete: (%x, %v)", value, err)
	}

	batch := NewBatch()
	batch.Put([]byte("b1"), []byte("x"))
	batch.Put([]byte("b2"), []byte("y"))
	if err := db.Write(batch); err != nil {
		t.Fatalf("batch write: %v", err)
	}
	if got, err := db.Get([]byte("b2")); err != nil || !bytes.Equal(got, []byte("y")) {
		t.Fatalf("batched key: (%x, %v)", got, err)
	}
}
