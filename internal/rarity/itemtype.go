package rarity

import "strings"

// Типы предметов в порядке сортировки внутри категории
var itemTypes = []string{
	"Body",
	"Decal",
	"Wheels",
	"Boost",
	"Topper",
	"Antenna",
	"Goal Explosion",
	"Trail",
	"Banner",
	"Avatar Border",
	"Engine Audio",
}

// TypeOrder — позиция типа предмета при сортировке, неизвестные в конец
func TypeOrder(itemType string) int {
	for i, t := range itemTypes {
		if strings.EqualFold(t, itemType) {
			return i
		}
	}
	return len(itemTypes)
}

// ExtractType определяет тип предмета по его названию
func ExtractType(name string) string {
	flat := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	for _, t := range itemTypes {
		keyword := strings.ToLower(strings.ReplaceAll(t, " ", ""))
		if strings.Contains(flat, keyword) {
			return t
		}
	}
	return ""
}
