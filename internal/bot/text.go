package bot

import (
	"strings"
	"unicode"
)

// MaxMessageLength максимальная длина одного сообщения с ответом AI
const MaxMessageLength = 4000

// splitMessage режет текст на части не длиннее maxLength символов.
// Разрез делается по последнему переводу строки, иначе жестко по лимиту
func splitMessage(text string, maxLength int) []string {
	var chunks []string

	runes := []rune(text)
	for len(runes) > maxLength {
		splitAt := lastNewline(runes[:maxLength])
		if splitAt <= 0 {
			splitAt = maxLength
		}
		chunks = append(chunks, string(runes[:splitAt]))
		runes = []rune(strings.TrimLeftFunc(string(runes[splitAt:]), unicode.IsSpace))
	}

	return append(chunks, string(runes))
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
