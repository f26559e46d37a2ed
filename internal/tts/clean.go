package tts

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	codeFence    = regexp.MustCompile("(?s)```.*?```")
	spaces       = regexp.MustCompile(`\s+`)

	symbolWords = strings.NewReplacer(
		"*", "", "_", "", "#", "", "`", "",
		"&", " and ",
		"@", " at ",
		"%", " percent ",
		"$", " dollars ",
		"+", " plus ",
		"=", " equals ",
		"<", " less than ",
		">", " greater than ",
	)
)

// CleanForSpeech strips markdown, code blocks and emoji, and spells out
// symbols so they are read naturally.
func CleanForSpeech(text string) string {
	text = codeFence.ReplaceAllString(text, " ")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = symbolWords.Replace(text)
	text = strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, emoticons, transport, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, zero width joiner
		return true
	}
	return unicode.Is(unicode.So, r) && r > 0x2000
}
