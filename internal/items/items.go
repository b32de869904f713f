package items

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"khomyak/internal/logger"
	"khomyak/internal/normalize"
	"khomyak/internal/rarity"
)

// ErrStoreCorrupted — файл результатов поврежден, работать с ним нельзя
var ErrStoreCorrupted = errors.New("файл результатов поврежден")

// Observation — одно зафиксированное открытие дропа
type Observation struct {
	Timestamp time.Time
	Category  string
	Name      string
	DropIndex int
}

// Store хранит результаты открытий.
// Журнал (items.txt.log) — источник истины: одна строка на наблюдение,
// дописывается с fsync перед переходом к следующему дропу. Падение процесса
// не трогает уже записанные строки.
// Файл items.txt — представление для человека, счетчики по секциям
// категорий. Перезаписывается целиком через временный файл и rename.
type Store struct {
	itemsPath   string
	journalPath string
	journal     *os.File
	logger      *logger.LoggerManager

	observations []Observation
	counts       map[string]map[string]int // категория -> название -> счетчик
}

// NewStore открывает хранилище результатов. Относительный путь разрешается
// от корня проекта, чтобы запуск из cmd/ и из корня писал в один файл.
func NewStore(path string, loggerManager *logger.LoggerManager) (*Store, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectRoot(), path)
	}

	s := &Store{
		itemsPath:   path,
		journalPath: path + ".log",
		logger:      loggerManager,
		counts:      make(map[string]map[string]int),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	journal, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия журнала %s: %w", s.journalPath, err)
	}
	s.journal = journal

	loggerManager.Info("📦 Хранилище результатов: %s (%d наблюдений)", s.itemsPath, len(s.observations))
	return s, nil
}

// Append записывает наблюдение: сначала строка журнала с fsync,
// потом перезапись items.txt. Только после возврата можно переходить
// к следующему дропу.
func (s *Store) Append(obs Observation) error {
	line := fmt.Sprintf("%s\t%s\t%s\t%d\n",
		obs.Timestamp.Format(time.RFC3339Nano),
		obs.Category,
		obs.Name,
		obs.DropIndex,
	)
	if _, err := s.journal.WriteString(line); err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	if err := s.journal.Sync(); err != nil {
		return fmt.Errorf("ошибка fsync журнала: %w", err)
	}

	s.observations = append(s.observations, obs)
	s.bump(obs.Category, obs.Name)

	if err := s.writeItemsFile(); err != nil {
		// Журнал уже записан, наблюдение не потеряно
		s.logger.LogError(err, "не удалось обновить файл результатов")
	}
	return nil
}

// Observations возвращает копию всех наблюдений в порядке записи
func (s *Store) Observations() []Observation {
	out := make([]Observation, len(s.observations))
	copy(out, s.observations)
	return out
}

// KnownItems возвращает все когда-либо записанные предметы
// для нечеткого сопоставления результатов OCR
func (s *Store) KnownItems() []normalize.KnownItem {
	var out []normalize.KnownItem
	for category, names := range s.counts {
		for name := range names {
			out = append(out, normalize.KnownItem{Name: name, Category: category})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Close закрывает журнал
func (s *Store) Close() error {
	return s.journal.Close()
}

func (s *Store) bump(category, name string) {
	if s.counts[category] == nil {
		s.counts[category] = make(map[string]int)
	}
	s.counts[category][name]++
}

// load восстанавливает состояние из журнала. Отсутствие файлов — не ошибка,
// хранилище начинает с нуля.
func (s *Store) load() error {
	data, err := os.ReadFile(s.journalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.checkItemsFile()
		}
		return fmt.Errorf("ошибка чтения журнала %s: %w", s.journalPath, err)
	}

	content := string(data)
	// Последняя строка без \n — оборванная запись после падения процесса.
	// Отбрасываем только ее, все завершенные строки обязаны разбираться.
	truncated := false
	if content != "" && !strings.HasSuffix(content, "\n") {
		if idx := strings.LastIndexByte(content, '\n'); idx >= 0 {
			content = content[:idx+1]
		} else {
			content = ""
		}
		truncated = true
	}

	for i, line := range strings.Split(content, "\n") {
		if line == "" {
			continue
		}
		obs, err := parseJournalLine(line)
		if err != nil {
			return fmt.Errorf("%w: журнал %s, строка %d: %v", ErrStoreCorrupted, s.journalPath, i+1, err)
		}
		s.observations = append(s.observations, obs)
		s.bump(obs.Category, obs.Name)
	}

	if truncated {
		s.logger.Warn("⚠️ Журнал оборван на последней строке, запись отброшена")
	}
	return s.checkItemsFile()
}

// checkItemsFile проверяет, что items.txt разбирается.
// Счетчики все равно восстанавливаются из журнала, но молча перезаписывать
// файл, который не смогли прочитать, нельзя.
func (s *Store) checkItemsFile() error {
	file, err := os.Open(s.itemsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка чтения %s: %w", s.itemsPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			continue
		}
		name, count, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("%w: %s, строка %d: %q", ErrStoreCorrupted, s.itemsPath, lineNo, line)
		}
		if _, err := strconv.Atoi(strings.TrimSpace(count)); err != nil || strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: %s, строка %d: %q", ErrStoreCorrupted, s.itemsPath, lineNo, line)
		}
	}
	return scanner.Err()
}

func parseJournalLine(line string) (Observation, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 4 {
		return Observation{}, fmt.Errorf("ожидалось 4 поля, получено %d", len(parts))
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Observation{}, fmt.Errorf("некорректная метка времени: %v", err)
	}
	dropIndex, err := strconv.Atoi(parts[3])
	if err != nil {
		return Observation{}, fmt.Errorf("некорректный номер дропа: %v", err)
	}
	if parts[1] == "" || parts[2] == "" {
		return Observation{}, fmt.Errorf("пустая категория или название")
	}
	return Observation{
		Timestamp: ts,
		Category:  parts[1],
		Name:      parts[2],
		DropIndex: dropIndex,
	}, nil
}

// writeItemsFile перезаписывает items.txt атомарно: временный файл + rename.
// Секции идут от самой редкой категории к самой частой, предметы внутри
// секции — по типу, длине и алфавиту.
func (s *Store) writeItemsFile() error {
	var b strings.Builder

	categories := make([]string, 0, len(s.counts))
	for category := range s.counts {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		oi, oj := rarity.FromCategory(categories[i]).Order(), rarity.FromCategory(categories[j]).Order()
		if oi != oj {
			return oi < oj
		}
		return categories[i] < categories[j]
	})

	for _, category := range categories {
		names := make([]string, 0, len(s.counts[category]))
		for name := range s.counts[category] {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			ti, tj := rarity.TypeOrder(rarity.ExtractType(names[i])), rarity.TypeOrder(rarity.ExtractType(names[j]))
			if ti != tj {
				return ti < tj
			}
			if len(names[i]) != len(names[j]) {
				return len(names[i]) < len(names[j])
			}
			return strings.ToLower(names[i]) < strings.ToLower(names[j])
		})

		fmt.Fprintf(&b, "[%s]\n", category)
		for _, name := range names {
			fmt.Fprintf(&b, "%s = %d\n", name, s.counts[category][name])
		}
		b.WriteString("\n")
	}

	tmp := s.itemsPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.itemsPath); err != nil {
		return fmt.Errorf("ошибка замены %s: %w", s.itemsPath, err)
	}
	return nil
}

// projectRoot ищет корень проекта по маркерным файлам,
// чтобы не зависеть от рабочей директории запуска
func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for probe := dir; ; {
		for _, marker := range []string{"go.mod", ".git", "config.yaml"} {
			if _, err := os.Stat(filepath.Join(probe, marker)); err == nil {
				return probe
			}
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return dir
		}
		probe = parent
	}
}
