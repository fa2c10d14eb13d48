package provider

import (
	"context"
	"time"
	"unicode"
	"unicode/utf8"
)

// SplitChunks splits text into word chunks. Each chunk is one word plus the
// whitespace that followed it; leading whitespace rides on the first chunk.
// strings.Join(SplitChunks(s), "") == s for every s.
func SplitChunks(text string) []string {
	var out []string
	n := len(text)
	start, i := 0, 0

	for i < n {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}

	for i < n {
		for i < n {
			r, size := utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		for i < n {
			r, size := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}
		out = append(out, text[start:i])
		start = i
	}

	// All-whitespace input.
	if start < n {
		out = append(out, text[start:])
	}
	return out
}

// emitChunks sends text on chunks in word-sized pieces with delay between
// sends. It stops early if ctx ends; the caller still owns the full text.
func emitChunks(ctx context.Context, chunks chan<- string, text string, delay time.Duration) {
	if chunks == nil {
		return
	}
	for i, c := range SplitChunks(text) {
		if i > 0 && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		select {
		case chunks <- c:
		case <-ctx.Done():
			return
		}
	}
}
