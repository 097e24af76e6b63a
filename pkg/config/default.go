// Global database config.
package config

// Name of the database.
const DBName = "bptreekv"

// Prompt printed by REPL.
const Prompt = DBName + "> "

// The maximum number of pages that can be in the pager's buffer at once.
const MaxPagesInBuffer = 32

// Name of the transaction diagnostics log file.
const TxnLogFileName = "bptreekv.txlog"

// PointerWidth is the width, in bytes, of a leaf slot's pointer word.
// Records that fit in this many bytes are inlined per spec (EMPTY/TINY/SMALL);
// anything larger is stored as a blob and the pointer word holds its BlobID.
const PointerWidth = 8

// Return prompt if requested, else "".
func GetPrompt(flag bool) string {
	if flag {
		return Prompt
	}
	return ""
}
