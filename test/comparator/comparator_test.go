package comparator_test

import (
	"testing"

	"bptreekv/pkg/comparator"
)

func TestDefault(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"abc", "abd", -1},
		{"abc", "abc", 0},
		{"abd", "abc", 1},
		{"ab", "abc", -1},
	}
	for _, c := range cases {
		got, err := comparator.Default([]byte(c.a), []byte(c.b))
		if err != nil {
			t.Fatal(err)
		}
		if sign(got) != c.want {
			t.Errorf("Default(%q, %q) = %d, expected sign %d", c.a, c.b, got, c.want)
		}
	}
}

func TestPrefix(t *testing.T) {
	cmp := comparator.Prefix(3)
	// Differ only after the first 3 bytes -> compares equal on prefix, then by length.
	got, err := cmp([]byte("abcXXX"), []byte("abcYY"))
	if err != nil {
		t.Fatal(err)
	}
	if sign(got) != 1 {
		t.Errorf("Prefix(3) should have ordered the longer common-prefix key last, got %d", got)
	}

	got, err = cmp([]byte("abcXXX"), []byte("abdYYY"))
	if err != nil {
		t.Fatal(err)
	}
	if sign(got) != -1 {
		t.Errorf("Prefix(3) should have compared by the differing prefix byte, got %d", got)
	}
}

func TestRegistry(t *testing.T) {
	r := comparator.NewRegistry()
	if _, ok := r.Lookup("default"); !ok {
		t.Fatal("Expected a fresh Registry to have a 'default' comparator registered")
	}
	if _, ok := r.Lookup("nonexistent"); ok {
		t.Error("Lookup should miss for an unregistered name")
	}

	called := false
	r.Register("custom", func(a, b []byte) (int, error) {
		called = true
		return comparator.Default(a, b)
	})
	cmp, ok := r.Lookup("custom")
	if !ok {
		t.Fatal("Expected 'custom' to be registered after Register")
	}
	if _, err := cmp([]byte("a"), []byte("b")); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("Expected the registered comparator to have been invoked")
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
