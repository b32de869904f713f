package rarity

import (
	"strings"

	"khomyak/internal/config"
)

// Rarity — редкость дропа
type Rarity int

const (
	BlackMarket Rarity = iota
	Exotic
	Import
	Deluxe
	Special
	Sport
	Unknown
)

// rarestFirst — порядок от самой редкой к самой частой
var rarestFirst = []Rarity{BlackMarket, Exotic, Import, Deluxe, Special, Sport}

var names = map[Rarity]string{
	BlackMarket: "Black Market",
	Exotic:      "Exotic",
	Import:      "Import",
	Deluxe:      "Deluxe",
	Special:     "Special",
	Sport:       "Sport",
	Unknown:     "Unknown",
}

func (r Rarity) String() string {
	if name, ok := names[r]; ok {
		return name
	}
	return "Unknown"
}

// Order — позиция при сортировке: чем реже, тем меньше
func (r Rarity) Order() int {
	return int(r)
}

// Category — название категории в файле результатов, например "Exotic Drop"
func (r Rarity) Category() string {
	if r == Unknown {
		return "Unknown"
	}
	return r.String() + " Drop"
}

// All возвращает все известные редкости от самой редкой к самой частой
func All() []Rarity {
	out := make([]Rarity, len(rarestFirst))
	copy(out, rarestFirst)
	return out
}

// Categories возвращает канонические названия категорий
func Categories() []string {
	out := make([]string, 0, len(rarestFirst)+1)
	for _, r := range rarestFirst {
		out = append(out, r.Category())
	}
	out = append(out, Unknown.Category())
	return out
}

// FromCategory определяет редкость по названию категории
func FromCategory(category string) Rarity {
	return FromText(category)
}

// FromText определяет редкость по распознанному тексту.
// Текст после OCR бывает слипшимся ("blackmarket"), поэтому
// сравниваем по подстроке без пробелов.
func FromText(text string) Rarity {
	flat := strings.ToLower(strings.ReplaceAll(text, " ", ""))
	if flat == "" {
		return Unknown
	}
	for _, r := range rarestFirst {
		keyword := strings.ToLower(strings.ReplaceAll(r.String(), " ", ""))
		if strings.Contains(flat, keyword) {
			return r
		}
	}
	return Unknown
}

// Strategy — один способ определения редкости
type Strategy func() (Rarity, bool)

// Classify пробует стратегии по очереди и возвращает первый уверенный ответ
func Classify(strategies ...Strategy) Rarity {
	for _, strategy := range strategies {
		if r, ok := strategy(); ok {
			return r
		}
	}
	return Unknown
}

// ByColor сопоставляет измеренный цвет баннера с эталонными цветами редкостей.
// Совпадение засчитывается только если подошел ровно один эталон:
// при неоднозначности честнее вернуть неуверенный ответ.
func ByColor(sampled config.ColorRGB, known map[string]config.ColorRGB, tolerance int) Strategy {
	return func() (Rarity, bool) {
		matched := Unknown
		matches := 0
		for name, want := range known {
			if colorClose(sampled, want, tolerance) {
				matched = FromText(name)
				matches++
			}
		}
		if matches != 1 || matched == Unknown {
			return Unknown, false
		}
		return matched, true
	}
}

// ByText определяет редкость по ключевому слову в распознанном тексте
func ByText(text string) Strategy {
	return func() (Rarity, bool) {
		r := FromText(text)
		return r, r != Unknown
	}
}

func colorClose(a, b config.ColorRGB, tolerance int) bool {
	return abs(a.R-b.R) <= tolerance && abs(a.G-b.G) <= tolerance && abs(a.B-b.B) <= tolerance
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
