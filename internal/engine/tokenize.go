package engine

import (
	"hash/fnv"
	"strings"
)

// Text encoder token constants. The start/end markers match the exported
// text model's special tokens; ordinary words are hashed into a fixed band
// of the vocabulary rather than run through the model's real subword
// vocabulary. See DESIGN.md for why the hashing scheme is kept.
const (
	tokenStart     = 49406
	tokenEnd       = 49407
	tokenHashBase  = 1000
	tokenHashRange = 39000
	contextLength  = 77
)

// tokenize converts a prompt into fixed-length input IDs and an attention
// mask for the text encoder. Output length is always contextLength, zero
// padded, with the mask marking real tokens.
func tokenize(prompt string) (ids, mask []int64) {
	ids = make([]int64, contextLength)
	mask = make([]int64, contextLength)

	words := strings.Fields(strings.ToLower(strings.TrimSpace(prompt)))

	pos := 0
	put := func(tok int64) {
		if pos < contextLength {
			ids[pos] = tok
			mask[pos] = 1
			pos++
		}
	}

	put(tokenStart)
	for _, w := range words {
		put(hashToken(w))
	}
	// End marker lands in the final slot when the prompt overflows.
	if pos == contextLength {
		pos--
	}
	ids[pos] = tokenEnd
	mask[pos] = 1
	return ids, mask
}

func hashToken(word string) int64 {
	h := fnv.New32a()
	h.Write([]byte(word))
	return int64(h.Sum32()%tokenHashRange) + tokenHashBase
}
