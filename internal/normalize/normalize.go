package normalize

import (
	"strings"
	"unicode"
)

// CleanText убирает мусор после OCR: невидимые символы, повторные пробелы,
// обрывки по краям строки
func CleanText(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsPrint(r) && r != '�' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Key приводит название к каноническому ключу для сравнения:
// нижний регистр, только буквы и цифры
func Key(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TitleCase приводит название предмета к виду "Exotic Wheels"
func TitleCase(text string) string {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// KnownItem — ранее записанный предмет для сопоставления с результатом OCR
type KnownItem struct {
	Name     string
	Category string
}

// FuzzyMatch ищет среди известных предметов ближайший к распознанному названию.
// OCR путает похожие символы, поэтому точного совпадения часто нет.
// Возвращает совпадение только при схожести не ниже threshold.
func FuzzyMatch(text string, known []KnownItem, threshold float64) (KnownItem, bool) {
	key := Key(text)
	if key == "" {
		return KnownItem{}, false
	}

	best := KnownItem{}
	bestScore := 0.0
	for _, item := range known {
		score := Similarity(key, Key(item.Name))
		if score > bestScore {
			best = item
			bestScore = score
		}
	}
	if bestScore < threshold {
		return KnownItem{}, false
	}
	return best, true
}

// Similarity — схожесть двух строк в диапазоне [0, 1]
// на основе расстояния Левенштейна
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein — классический расчет редакционного расстояния на двух строках
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
