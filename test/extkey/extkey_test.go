package extkey_test

import (
	"bytes"
	"testing"

	"bptreekv/pkg/extkey"
)

func TestExtkeyCache(t *testing.T) {
	t.Run("GetMiss", testExtkeyGetMiss)
	t.Run("PutGet", testExtkeyPutGet)
	t.Run("PutOverwritesSameID", testExtkeyPutOverwritesSameID)
	t.Run("Remove", testExtkeyRemove)
}

func testExtkeyGetMiss(t *testing.T) {
	c := extkey.New()
	if _, ok := c.Get(42); ok {
		t.Error("Expected Get on an empty cache to miss")
	}
}

func testExtkeyPutGet(t *testing.T) {
	c := extkey.New()
	key := []byte("a very long extended key that overflowed the node")
	c.Put(7, key)
	got, ok := c.Get(7)
	if !ok {
		t.Fatal("Expected Get to hit after Put")
	}
	if !bytes.Equal(got, key) {
		t.Errorf("Get returned %q, expected %q", got, key)
	}
}

func testExtkeyPutOverwritesSameID(t *testing.T) {
	c := extkey.New()
	c.Put(7, []byte("first"))
	c.Put(7, []byte("second"))
	got, ok := c.Get(7)
	if !ok || !bytes.Equal(got, []byte("second")) {
		t.Errorf("Expected Put to overwrite the entry for the same id, got %q, ok=%v", got, ok)
	}
}

func testExtkeyRemove(t *testing.T) {
	c := extkey.New()
	c.Put(7, []byte("gone soon"))
	c.Remove(7)
	if _, ok := c.Get(7); ok {
		t.Error("Expected Get to miss after Remove")
	}
}
