package utils

import (
	"math/rand"
	"os"
	"testing"

	copydir "github.com/otiai10/copy"

	"bptreekv/pkg/btree"
	"bptreekv/pkg/entry"
)

// Mod vals by this value to prevent hardcoding tests
// + 1 is necessary because rand.Int63n(_) can return 0
var Salt int64 = rand.Int63n(1000) + 1

// EnsureCleanup registers fn to run when t (or a parent it shares a
// binary's exit with) finishes, regardless of pass/fail/panic.
func EnsureCleanup(t *testing.T, fn func()) {
	t.Cleanup(fn)
}

// GetTempDbFile creates a random file in the OS's temp directory to be used
// as a B+-tree index's backing file, returning its name. The file, and a
// "<file>.txlog" sidecar if one exists, are removed once the test finishes.
func GetTempDbFile(t *testing.T) string {
	tmpfile, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatal(err)
	}
	_ = tmpfile.Close()

	EnsureCleanup(t, func() {
		_ = os.Remove(tmpfile.Name())
		_ = os.Remove(tmpfile.Name() + ".txlog")
	})
	return tmpfile.Name()
}

// SnapshotDir copies the directory at src into a fresh temp directory and
// returns the path to the copy, so a test that wants to mutate a shared,
// expensive-to-build fixture (e.g. a large pre-populated index) can do so
// without affecting the original or other tests reusing it.
func SnapshotDir(t *testing.T, src string) string {
	dst, err := os.MkdirTemp("", "bptreekv-snapshot-*")
	if err != nil {
		t.Fatal(err)
	}
	EnsureCleanup(t, func() {
		_ = os.RemoveAll(dst)
	})
	if err := copydir.Copy(src, dst); err != nil {
		t.Fatal(err)
	}
	return dst
}

// InsertEntry inserts (key, val) into tree, erroring the test if the
// operation fails.
func InsertEntry(t *testing.T, tree *btree.BTreeIndex, key, val string) {
	if err := tree.Insert([]byte(key), []byte(val)); err != nil {
		t.Errorf("Failed to insert (%q, %q) into the index: %s", key, val, err)
	}
}

// CheckFindEntry verifies that (key, expectedVal) is present in tree,
// erroring the test if the entry isn't found or has the wrong value.
func CheckFindEntry(t *testing.T, tree *btree.BTreeIndex, key, expectedVal string) {
	rec, err := tree.Find([]byte(key))
	if err != nil {
		t.Errorf("Failed to find inserted entry (%q, %q): %s", key, expectedVal, err)
		return
	}
	CheckEntry(t, entry.Entry{Key: []byte(key), Value: rec}, key, expectedVal)
}

// CheckEntry verifies that e has the expected key and value.
func CheckEntry(t *testing.T, e entry.Entry, expectedKey, expectedVal string) {
	if string(e.Key) != expectedKey {
		t.Errorf("Expected entry to have key %q, but instead found key %q", expectedKey, string(e.Key))
		return
	}
	if string(e.Value) != expectedVal {
		t.Errorf("Expected entry with key %q to have value %q, but instead found value %q", expectedKey, expectedVal, string(e.Value))
	}
}
