package btree

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"bptreekv/pkg/entry"
	"bptreekv/pkg/repl"
)

// Repl returns the set of REPL commands this package exposes over a single
// open BTreeIndex, generalized from the teacher's DatabaseRepl: keys and
// records are arbitrary strings (treated as their raw bytes) rather than
// fixed int64 fields, and there is exactly one table - this index.
func Repl(tree *BTreeIndex) *repl.REPL {
	r := repl.NewRepl()

	r.AddCommand("find", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleFind(tree, payload)
	}, "Find an entry. usage: find <key>")

	r.AddCommand("insert", func(payload string, _ *repl.REPLConfig) (string, error) {
		return "", handleInsert(tree, payload)
	}, "Insert an entry. usage: insert <key> <value>")

	r.AddCommand("overwrite", func(payload string, _ *repl.REPLConfig) (string, error) {
		return "", handleOverwrite(tree, payload)
	}, "Overwrite an entry's value. usage: overwrite <key> <value>")

	r.AddCommand("delete", func(payload string, _ *repl.REPLConfig) (string, error) {
		return "", handleDelete(tree, payload)
	}, "Delete an entry. usage: delete <key>")

	r.AddCommand("select", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleSelect(tree, payload)
	}, "Select every entry in key order. usage: select")

	r.AddCommand("selectrange", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleSelectRange(tree, payload)
	}, "Select entries in [start, end). usage: selectrange <start> <end>")

	r.AddCommand("pretty", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handlePretty(tree, payload)
	}, "Print the internal page representation. usage: pretty [pagenum]")

	return r
}

func handleFind(tree *BTreeIndex, payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: find <key>")
	}
	rec, err := tree.Find([]byte(fields[1]))
	if err != nil {
		return "", fmt.Errorf("find error: %v", err)
	}
	return fmt.Sprintf("found entry: (%s, %s)\n", fields[1], string(rec)), nil
}

func handleInsert(tree *BTreeIndex, payload string) error {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return fmt.Errorf("usage: insert <key> <value>")
	}
	if err := tree.Insert([]byte(fields[1]), []byte(fields[2])); err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	return nil
}

func handleOverwrite(tree *BTreeIndex, payload string) error {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return fmt.Errorf("usage: overwrite <key> <value>")
	}
	cur := tree.NewCursor()
	defer cur.Close()
	if err := cur.Find([]byte(fields[1])); err != nil {
		return fmt.Errorf("overwrite error: %v", err)
	}
	if err := cur.Overwrite([]byte(fields[2])); err != nil {
		return fmt.Errorf("overwrite error: %v", err)
	}
	return nil
}

func handleDelete(tree *BTreeIndex, payload string) error {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return fmt.Errorf("usage: delete <key>")
	}
	if err := tree.Erase([]byte(fields[1])); err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	return nil
}

func handleSelect(tree *BTreeIndex, payload string) (string, error) {
	if len(strings.Fields(payload)) != 1 {
		return "", fmt.Errorf("usage: select")
	}
	entries, err := tree.Select()
	if err != nil {
		return "", fmt.Errorf("select error: %v", err)
	}
	w := new(strings.Builder)
	printResults(entries, w)
	return w.String(), nil
}

func handleSelectRange(tree *BTreeIndex, payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return "", fmt.Errorf("usage: selectrange <start> <end>")
	}
	entries, err := tree.SelectRange([]byte(fields[1]), []byte(fields[2]))
	if err != nil {
		return "", fmt.Errorf("selectrange error: %v", err)
	}
	w := new(strings.Builder)
	printResults(entries, w)
	return w.String(), nil
}

func handlePretty(tree *BTreeIndex, payload string) (string, error) {
	fields := strings.Fields(payload)
	w := new(strings.Builder)
	switch len(fields) {
	case 1:
		tree.Print(w)
	case 2:
		pn, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", fmt.Errorf("pretty error: %v", err)
		}
		tree.PrintPN(int64(pn), w)
	default:
		return "", fmt.Errorf("usage: pretty [pagenum]")
	}
	return w.String(), nil
}

func printResults(entries []entry.Entry, w io.Writer) {
	for _, e := range entries {
		fmt.Fprintf(w, "(%s, %s)\n", string(e.Key), string(e.Value))
	}
}
