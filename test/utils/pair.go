package utils

import (
	"fmt"
	"math/rand"
)

// KeyValuePair is a pair of string key and value, stood in for the byte
// keys/records a BTreeIndex actually stores.
type KeyValuePair struct {
	Key string
	Val string
}

// GenerateRandomKeyValuePairs generates n random key-value pairs with
// unique keys. Returns the n pairs generated in a slice and a map from
// each generated key to its value.
func GenerateRandomKeyValuePairs(n int64) ([]KeyValuePair, map[string]string) {
	entries := make([]KeyValuePair, n)
	answerKey := make(map[string]string, n)
	for i := range n {
	genKey:
		key := fmt.Sprintf("key-%016x", rand.Int63())
		if _, ok := answerKey[key]; ok {
			goto genKey
		}
		val := fmt.Sprintf("val-%016x", rand.Int63())
		answerKey[key] = val
		entries[i] = KeyValuePair{Key: key, Val: val}
	}
	return entries, answerKey
}
