package util

import (
	"crypto/rand"
	"encoding/hex"
)

func RandomString(n int) string {
	bytes := make([]byte, (n+1)/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:n]
}

// Chunk splits items into consecutive groups of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
