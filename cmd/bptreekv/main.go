package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"bptreekv/pkg/btree"
	"bptreekv/pkg/config"
	"bptreekv/pkg/repl"
	"bptreekv/pkg/txlog"
)

// setupCloseHandler flushes and closes tree on SIGINT/SIGTERM.
func setupCloseHandler(tree *btree.BTreeIndex) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		tree.Close()
		os.Exit(0)
	}()
}

// The outer database layer is a thin demonstration of open/create/close
// over a single B+-tree index; it exists so the module is a runnable
// program, generalized from the teacher's cmd/dinodb + pkg/repl. It carries
// none of the teacher's concurrency/recovery server scaffolding, both
// explicit non-goals.
func main() {
	var promptFlag = flag.Bool("c", true, "use prompt?")
	var dbFlag = flag.String("db", "data/db.bptree", "path to the index file ('' for an anonymous in-memory index)")
	var maxKeyFlag = flag.Int64("maxkey", btree.DefaultMaxKeySize, "max in-node key size before extended-key overflow")
	flag.Parse()

	if *dbFlag != "" {
		if dir := filepath.Dir(*dbFlag); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fmt.Println(err)
				return
			}
		}
	}

	tree, err := btree.OpenIndex(*dbFlag, btree.WithMaxKeySize(*maxKeyFlag))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer tree.Close()
	setupCloseHandler(tree)

	if *dbFlag != "" {
		logPath := filepath.Join(filepath.Dir(*dbFlag), config.TxnLogFileName)
		if log, err := txlog.Open(logPath); err == nil {
			tree.SetTxnLogger(log)
			defer log.Close()
		}
	}

	prompt := config.GetPrompt(*promptFlag)
	r := btree.Repl(tree)
	r.Run(uuid.New(), prompt, nil, nil)
}
