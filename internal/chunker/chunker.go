// Package chunker splits long text into pieces that fit a chat message.
package chunker

// Split breaks text into chunks of at most limit runes.
//
// A chunk ends at the last newline before the limit when that newline sits
// past half the limit, else at the last space past a quarter of the limit,
// else exactly at the limit. Newlines at the start of the remainder are
// dropped, so joining the chunks gives back the text minus those newlines.
func Split(text string, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}

		cut := lastIndex(runes[:limit], '\n')
		if cut < limit/2 {
			cut = lastIndex(runes[:limit], ' ')
		}
		if cut < limit/4 || cut <= 0 {
			cut = limit
		}

		chunks = append(chunks, string(runes[:cut]))
		runes = trimLeadingNewlines(runes[cut:])
	}
	return chunks
}

func lastIndex(runes []rune, target rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == target {
			return i
		}
	}
	return -1
}

func trimLeadingNewlines(runes []rune) []rune {
	i := 0
	for i < len(runes) && runes[i] == '\n' {
		i++
	}
	return runes[i:]
}
