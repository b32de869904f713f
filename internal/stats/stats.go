package stats

import (
	"fmt"
	"sort"
	"strings"

	"khomyak/internal/items"
	"khomyak/internal/rarity"
)

// CategoryStat — счетчик и частота по категории дропов
type CategoryStat struct {
	Category  string
	Count     int
	Frequency float64
}

// ItemStat — счетчик и частота конкретного предмета
type ItemStat struct {
	Name      string
	Category  string
	Count     int
	Frequency float64
}

// Report — итоговая статистика по всем наблюдениям
type Report struct {
	Total      int
	Categories []CategoryStat
	Items      []ItemStat
}

// Compute считает частоты по списку наблюдений.
// При пустом списке возвращает нулевые счетчики и частоту 0
// по всем известным категориям, а не пустой отчет.
func Compute(observations []items.Observation) Report {
	report := Report{Total: len(observations)}

	categoryCounts := make(map[string]int)
	itemCounts := make(map[string]map[string]int)
	for _, obs := range observations {
		categoryCounts[obs.Category]++
		if itemCounts[obs.Category] == nil {
			itemCounts[obs.Category] = make(map[string]int)
		}
		itemCounts[obs.Category][obs.Name]++
	}

	// Известные категории присутствуют в отчете всегда
	seen := make(map[string]bool)
	for _, category := range rarity.Categories() {
		seen[category] = true
		report.Categories = append(report.Categories, CategoryStat{
			Category:  category,
			Count:     categoryCounts[category],
			Frequency: frequency(categoryCounts[category], report.Total),
		})
	}
	for category, count := range categoryCounts {
		if seen[category] {
			continue
		}
		report.Categories = append(report.Categories, CategoryStat{
			Category:  category,
			Count:     count,
			Frequency: frequency(count, report.Total),
		})
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		oi, oj := rarity.FromCategory(report.Categories[i].Category).Order(), rarity.FromCategory(report.Categories[j].Category).Order()
		if oi != oj {
			return oi < oj
		}
		return report.Categories[i].Category < report.Categories[j].Category
	})

	for category, names := range itemCounts {
		for name, count := range names {
			report.Items = append(report.Items, ItemStat{
				Name:      name,
				Category:  category,
				Count:     count,
				Frequency: frequency(count, report.Total),
			})
		}
	}
	sort.Slice(report.Items, func(i, j int) bool {
		if report.Items[i].Count != report.Items[j].Count {
			return report.Items[i].Count > report.Items[j].Count
		}
		if report.Items[i].Category != report.Items[j].Category {
			return report.Items[i].Category < report.Items[j].Category
		}
		return report.Items[i].Name < report.Items[j].Name
	})

	return report
}

// frequency — доля от общего числа наблюдений, 0 при пустой выборке
func frequency(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

// Format печатает отчет в читаемом виде
func Format(report Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Всего открыто дропов: %d\n\n", report.Total)

	b.WriteString("Категории:\n")
	for _, c := range report.Categories {
		fmt.Fprintf(&b, "  %-20s %5d  %6.2f%%\n", c.Category, c.Count, c.Frequency*100)
	}

	if len(report.Items) > 0 {
		b.WriteString("\nПредметы:\n")
		for _, item := range report.Items {
			fmt.Fprintf(&b, "  %-35s %-20s %5d  %6.2f%%\n", item.Name, item.Category, item.Count, item.Frequency*100)
		}
	}
	return b.String()
}
