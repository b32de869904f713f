package opener

import (
	"fmt"
	"image"
	"strings"
	"sync/atomic"
	"time"

	"khomyak/internal/config"
	"khomyak/internal/items"
	"khomyak/internal/logger"
	"khomyak/internal/normalize"
	"khomyak/internal/rarity"
	"khomyak/internal/screen"
	"khomyak/internal/stats"
	"khomyak/internal/window"
)

// State — состояние цикла открытия дропов
type State int

const (
	StateIdle State = iota
	StateAwaitingOpen
	StateAwaitingReveal
	StateDetecting
	StateClassifying
	StateRecorded
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingOpen:
		return "AwaitingOpen"
	case StateAwaitingReveal:
		return "AwaitingReveal"
	case StateDetecting:
		return "Detecting"
	case StateClassifying:
		return "Classifying"
	case StateRecorded:
		return "Recorded"
	case StateStopped:
		return "Stopped"
	}
	return "Unknown"
}

// Event — переход состояния для внешних наблюдателей
type Event struct {
	State     State
	DropIndex int
	Detail    string
}

// matchThreshold — минимальная схожесть для сопоставления
// распознанного названия с уже известным предметом
const matchThreshold = 0.6

// ocrFailureWarnThreshold — после стольких подряд сбоев OCR предупреждаем,
// что окно скорее всего сдвинуто или калибровка неверна
const ocrFailureWarnThreshold = 5

// Sampler ищет пиксели эталонных цветов в областях экрана
type Sampler interface {
	Exists(want config.ColorRGB, area image.Rectangle, tolerance int) (bool, error)
}

// Extractor распознает текст области с повторами
type Extractor interface {
	ExtractText(capture func() (image.Image, error), label string) (string, error)
}

// Clicker кликает по координатам относительно окна игры
type Clicker interface {
	ClickAt(p image.Point) error
	ClickAtDelay(p image.Point, delay time.Duration) error
}

// WindowCache отдает геометрию окна игры
type WindowCache interface {
	Resolve() (window.Geometry, error)
	Invalidate()
}

// ResultStore фиксирует наблюдения
type ResultStore interface {
	Append(items.Observation) error
	Observations() []items.Observation
	KnownItems() []normalize.KnownItem
}

// Mirror — опциональное зеркало результатов (MySQL)
type Mirror interface {
	SaveObservationAsync(obs items.Observation, sessionID string)
	SaveOCRFailureAsync(sessionID, label, rawText string)
}

// DropOpener — однопоточный цикл автоматизации открытия дропов.
// Остановка кооперативная: RequestStop выставляет флаг, цикл проверяет его
// на границах шагов. Участок от детекции до записи результата
// не прерывается никогда, чтобы открытый дроп не остался незаписанным.
type DropOpener struct {
	cfg       config.Config
	windows   WindowCache
	sampler   Sampler
	ocr       Extractor
	clicks    Clicker
	store     ResultStore
	mirror    Mirror // может быть nil
	capture   screen.CaptureFunc
	logger    *logger.LoggerManager
	sessionID string

	events chan Event
	stop   atomic.Bool

	// Подменяется в тестах
	sleep func(time.Duration)

	dropIndex      int
	ocrFailures    int
	dropsProcessed int
}

// NewDropOpener собирает цикл автоматизации из компонентов
func NewDropOpener(
	cfg config.Config,
	windows WindowCache,
	regionSampler Sampler,
	extractor Extractor,
	clicks Clicker,
	store ResultStore,
	mirror Mirror,
	capture screen.CaptureFunc,
	sessionID string,
	loggerManager *logger.LoggerManager,
) *DropOpener {
	return &DropOpener{
		cfg:       cfg,
		windows:   windows,
		sampler:   regionSampler,
		ocr:       extractor,
		clicks:    clicks,
		store:     store,
		mirror:    mirror,
		capture:   capture,
		sessionID: sessionID,
		logger:    loggerManager,
		events:    make(chan Event, 64),
		sleep:     time.Sleep,
	}
}

// Events — переходы состояний. Отправка неблокирующая:
// медленный потребитель теряет события, а не тормозит цикл.
func (o *DropOpener) Events() <-chan Event {
	return o.events
}

// RequestStop запрашивает кооперативную остановку
func (o *DropOpener) RequestStop() {
	o.stop.Store(true)
}

// Report считает текущую статистику по всем наблюдениям.
// Вызывать между сессиями, когда цикл не пишет.
func (o *DropOpener) Report() stats.Report {
	return stats.Compute(o.store.Observations())
}

// Run выполняет одну сессию: обрабатывает дропы, пока они есть
// или пока не запросили остановку
func (o *DropOpener) Run() error {
	o.stop.Store(false)
	o.dropIndex = len(o.store.Observations())
	o.dropsProcessed = 0
	o.ocrFailures = 0

	o.emit(StateIdle, "")
	o.logger.Info("🚀 Сессия %s запущена", o.sessionID)
	o.sleep(seconds(o.cfg.Timing.InitialDelay))

	if err := o.validateWindow(); err != nil {
		return err
	}

	for !o.stopped() {
		geometry, err := o.windows.Resolve()
		if err != nil {
			return fmt.Errorf("не удалось определить геометрию окна: %w", err)
		}

		hasDrops, err := o.hasDropsAvailable(geometry)
		if err != nil {
			o.logger.LogError(err, "проверка списка наград")
			o.noteOCRFailure()
			o.sleep(time.Second)
			continue
		}
		if !hasDrops {
			o.logger.Info("✅ Дропы закончились, обработано: %d", o.dropsProcessed)
			break
		}

		present, err := o.sampler.Exists(
			o.cfg.DropCheckColor,
			geometry.Project(o.cfg.Screenshot.DropCheck),
			o.cfg.DropCheckTolerance,
		)
		if err != nil {
			return fmt.Errorf("ошибка проверки индикатора дропа: %w", err)
		}
		if !present {
			o.sleep(500 * time.Millisecond)
			continue
		}

		category, ok := o.detectCategory(geometry)
		if !ok {
			o.noteOCRFailure()
			o.windows.Invalidate()
			o.sleep(time.Second)
			continue
		}
		o.ocrFailures = 0

		o.logger.Info("🖼️ Найден дроп категории %q", category)
		if err := o.clicks.ClickAtDelay(o.cfg.Click.Drop, time.Second); err != nil {
			return fmt.Errorf("ошибка открытия контейнера дропа: %w", err)
		}

		if err := o.processDrop(category); err != nil {
			return err
		}

		if err := o.clicks.ClickAtDelay(o.cfg.Click.Back, seconds(o.cfg.Timing.BackDelay)); err != nil {
			return fmt.Errorf("ошибка возврата к списку дропов: %w", err)
		}
		o.dropsProcessed++
	}

	if o.stopped() {
		o.logger.Info("⏹️ Сессия остановлена по запросу, обработано: %d", o.dropsProcessed)
	}
	o.emit(StateStopped, "")
	return nil
}

// processDrop открывает предметы контейнера, пока кнопка открытия активна
func (o *DropOpener) processDrop(category string) error {
	for !o.stopped() {
		canOpen, err := o.canOpenItem()
		if err != nil {
			o.logger.LogError(err, "проверка кнопки открытия")
			return nil
		}
		if !canOpen {
			o.logger.Debug("🔘 Кнопка открытия неактивна, предметы закончились")
			return nil
		}
		if err := o.openSingleItem(category); err != nil {
			return err
		}
	}
	return nil
}

// canOpenItem проверяет состояние кнопки открытия предмета
func (o *DropOpener) canOpenItem() (bool, error) {
	if err := o.clicks.ClickAtDelay(o.cfg.Click.Drop, time.Second); err != nil {
		return false, err
	}

	geometry, err := o.windows.Resolve()
	if err != nil {
		return false, err
	}
	area := geometry.Project(o.cfg.Screenshot.OpenButton)

	enabled, err := o.sampler.Exists(o.cfg.OpenButtonColor, area, o.cfg.OpenButtonTolerance)
	if err != nil {
		return false, err
	}
	if enabled {
		return true, nil
	}

	disabled, err := o.sampler.Exists(o.cfg.OpenButtonDisabledColor, area, o.cfg.OpenButtonTolerance)
	if err != nil {
		return false, err
	}
	if !disabled {
		o.logger.Warn("⚠️ Кнопка открытия не распознана ни активной, ни неактивной")
	}
	return false, nil
}

// openSingleItem открывает один предмет: клик, ожидание анимации,
// распознавание, классификация и запись. После детекции до записи
// остановка не проверяется.
func (o *DropOpener) openSingleItem(category string) error {
	o.dropIndex++
	o.emit(StateAwaitingOpen, category)

	if err := o.clicks.ClickAt(o.cfg.Click.OpenItem); err != nil {
		return fmt.Errorf("ошибка клика по кнопке открытия: %w", err)
	}
	if err := o.clicks.ClickAt(o.cfg.Click.Confirm); err != nil {
		return fmt.Errorf("ошибка подтверждения открытия: %w", err)
	}

	o.emit(StateAwaitingReveal, category)
	geometry, err := o.windows.Resolve()
	if err != nil {
		return fmt.Errorf("не удалось определить геометрию окна: %w", err)
	}

	// Ждем окончания анимации: баннер редкости появляется на экране
	ready := false
	for poll := 0; poll < o.cfg.MaxRevealPolls; poll++ {
		o.sleep(seconds(o.cfg.Timing.DropCheckInterval))
		if o.revealReady(geometry) {
			ready = true
			break
		}
	}
	if !ready {
		// Этот предмет пропускаем, чтобы не записать мусор
		o.logger.Warn("⚠️ Дроп #%d: анимация не завершилась за %d ожиданий, предмет пропущен",
			o.dropIndex, o.cfg.MaxRevealPolls)
		o.emit(StateAwaitingReveal, "detection timeout")
		o.noteOCRFailure()
		return o.closeReveal()
	}

	o.emit(StateDetecting, category)
	name, rawOK := o.detectItemName(geometry)

	o.emit(StateClassifying, category)
	itemRarity := rarity.Classify(
		o.classifyByBannerColor(geometry),
		rarity.ByText(name),
	)

	finalCategory := category
	if itemRarity != rarity.Unknown {
		finalCategory = itemRarity.Category()
	}

	obs := items.Observation{
		Timestamp: time.Now(),
		Category:  finalCategory,
		Name:      name,
		DropIndex: o.dropIndex,
	}
	if err := o.store.Append(obs); err != nil {
		return fmt.Errorf("ошибка записи результата: %w", err)
	}
	o.emit(StateRecorded, fmt.Sprintf("%s / %s", finalCategory, name))
	o.logger.Info("✅ Дроп #%d записан: [%s] %s", o.dropIndex, finalCategory, name)

	if o.mirror != nil {
		o.mirror.SaveObservationAsync(obs, o.sessionID)
	}
	if rawOK {
		o.ocrFailures = 0
	}

	return o.closeReveal()
}

// closeReveal закрывает экран открытого предмета
func (o *DropOpener) closeReveal() error {
	if err := o.clicks.ClickAtDelay(o.cfg.Click.Close, 500*time.Millisecond); err != nil {
		return fmt.Errorf("ошибка закрытия экрана предмета: %w", err)
	}
	return nil
}

// detectItemName распознает название открытого предмета.
// При неудаче предмет записывается как Unknown: факт открытия
// важнее названия, дроп уже потрачен.
func (o *DropOpener) detectItemName(geometry window.Geometry) (string, bool) {
	area := geometry.Project(o.cfg.Screenshot.ItemOpen)
	text, err := o.ocr.ExtractText(o.captureArea(area), "item_name")
	if err != nil {
		o.logger.LogError(err, fmt.Sprintf("распознавание названия дропа #%d", o.dropIndex))
		o.noteOCRFailure()
		if o.mirror != nil {
			o.mirror.SaveOCRFailureAsync(o.sessionID, "item_name", text)
		}
		return "Unknown", false
	}

	// Сопоставляем с уже известными предметами: OCR стабильно
	// ошибается в одних и тех же символах
	if known, ok := normalize.FuzzyMatch(text, o.store.KnownItems(), matchThreshold); ok {
		if !strings.EqualFold(known.Name, text) {
			o.logger.Debug("🔍 %q сопоставлен с известным предметом %q", text, known.Name)
		}
		return known.Name, true
	}
	return normalize.TitleCase(text), true
}

// hasDropsAvailable проверяет заголовок списка наград
func (o *DropOpener) hasDropsAvailable(geometry window.Geometry) (bool, error) {
	area := geometry.Project(o.cfg.Screenshot.RewardItems)
	text, err := o.ocr.ExtractText(o.captureArea(area), "reward_items")
	if err != nil {
		return false, err
	}
	return strings.Contains(normalize.Key(text), "rewarditems"), nil
}

// detectCategory распознает категорию выбранного дропа
func (o *DropOpener) detectCategory(geometry window.Geometry) (string, bool) {
	area := geometry.Project(o.cfg.Screenshot.DropFound)
	text, err := o.ocr.ExtractText(o.captureArea(area), "drop_category")
	if err != nil {
		o.logger.LogError(err, "распознавание категории дропа")
		return "", false
	}
	r := rarity.FromText(text)
	if r == rarity.Unknown {
		o.logger.Warn("⚠️ Неизвестная категория дропа: %q", text)
		return "", false
	}
	return r.Category(), true
}

// revealReady — баннер редкости уже на экране
func (o *DropOpener) revealReady(geometry window.Geometry) bool {
	area := geometry.Project(o.cfg.Screenshot.RarityBanner)
	for _, col := range o.cfg.RarityColors {
		found, err := o.sampler.Exists(col, area, o.cfg.ColorShadeTolerance)
		if err != nil {
			return false
		}
		if found {
			return true
		}
	}
	return false
}

// classifyByBannerColor определяет редкость по цвету пикселя
// в центре баннера редкости
func (o *DropOpener) classifyByBannerColor(geometry window.Geometry) rarity.Strategy {
	return func() (rarity.Rarity, bool) {
		area := geometry.Project(o.cfg.Screenshot.RarityBanner)
		img, err := o.capture(area)
		if err != nil {
			return rarity.Unknown, false
		}
		bounds := img.Bounds()
		r, g, b := screen.GetPixelColor(img, bounds.Min.X+bounds.Dx()/2, bounds.Min.Y+bounds.Dy()/2)
		return rarity.ByColor(config.ColorRGB{R: r, G: g, B: b}, o.cfg.RarityColors, o.cfg.ColorShadeTolerance)()
	}
}

// validateWindow проверяет разрешение окна: координаты откалиброваны
// под конкретное разрешение, иначе клики уйдут мимо
func (o *DropOpener) validateWindow() error {
	geometry, err := o.windows.Resolve()
	if err != nil {
		return fmt.Errorf("не удалось определить геометрию окна: %w", err)
	}
	if geometry.Width != o.cfg.RequiredWidth || geometry.Height != o.cfg.RequiredHeight {
		return fmt.Errorf("%w: %dx%d, требуется %dx%d",
			window.ErrWrongResolution,
			geometry.Width, geometry.Height,
			o.cfg.RequiredWidth, o.cfg.RequiredHeight)
	}
	return nil
}

// noteOCRFailure считает подряд идущие сбои распознавания
func (o *DropOpener) noteOCRFailure() {
	o.ocrFailures++
	if o.ocrFailures >= ocrFailureWarnThreshold {
		o.logger.Warn("⚠️ %d сбоев распознавания подряд: проверьте положение окна и калибровку", o.ocrFailures)
	}
}

// captureArea — замыкание захвата области для повторных попыток OCR
func (o *DropOpener) captureArea(area image.Rectangle) func() (image.Image, error) {
	return func() (image.Image, error) {
		return o.capture(area)
	}
}

func (o *DropOpener) stopped() bool {
	return o.stop.Load()
}

// emit — неблокирующая отправка события
func (o *DropOpener) emit(state State, detail string) {
	select {
	case o.events <- Event{State: state, DropIndex: o.dropIndex, Detail: detail}:
	default:
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
