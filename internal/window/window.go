package window

import (
	"errors"
	"fmt"
	"image"

	"khomyak/internal/config"
	"khomyak/internal/logger"
	"khomyak/internal/screen"
)

var (
	// ErrWindowNotFound — окно игры не найдено на экране
	ErrWindowNotFound = errors.New("окно игры не найдено")
	// ErrWrongResolution — окно найдено, но разрешение не соответствует калибровке
	ErrWrongResolution = errors.New("неподдерживаемое разрешение окна")
)

// Geometry описывает положение окна игры в абсолютных координатах экрана
type Geometry struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Project переводит область относительно окна в абсолютный прямоугольник экрана
func (g Geometry) Project(area config.CoordinatesWithSize) image.Rectangle {
	return image.Rect(
		g.X+area.X,
		g.Y+area.Y,
		g.X+area.X+area.Width,
		g.Y+area.Y+area.Height,
	)
}

// ProjectPoint переводит точку относительно окна в абсолютные координаты экрана
func (g Geometry) ProjectPoint(p image.Point) image.Point {
	return image.Point{X: g.X + p.X, Y: g.Y + p.Y}
}

// Locator — функция полного поиска окна (дорогая операция со скриншотом экрана)
type Locator func() (Geometry, error)

// WindowManager кеширует геометрию окна игры.
// Полный поиск окна выполняется только при первом обращении и далее
// каждые refreshInterval обращений, остальные запросы идут из кеша.
type WindowManager struct {
	locate          Locator
	refreshInterval int
	logger          *logger.LoggerManager

	cached     *Geometry
	sinceFresh int
}

// NewWindowManager создает менеджер геометрии окна
func NewWindowManager(locate Locator, refreshInterval int, loggerManager *logger.LoggerManager) *WindowManager {
	return &WindowManager{
		locate:          locate,
		refreshInterval: refreshInterval,
		logger:          loggerManager,
	}
}

// Resolve возвращает геометрию окна, обновляя кеш по расписанию
func (w *WindowManager) Resolve() (Geometry, error) {
	if w.cached != nil {
		w.sinceFresh++
		if w.sinceFresh < w.refreshInterval {
			return *w.cached, nil
		}
		w.logger.Debug("🔄 Плановое обновление геометрии окна (каждые %d обращений)", w.refreshInterval)
	}

	geometry, err := w.locate()
	if err != nil {
		// Кеш больше не заслуживает доверия
		w.cached = nil
		w.sinceFresh = 0
		return Geometry{}, err
	}

	w.cached = &geometry
	w.sinceFresh = 0
	return geometry, nil
}

// Invalidate сбрасывает кеш, следующий Resolve выполнит полный поиск.
// Вызывается после сбоев детекции: окно могли передвинуть.
func (w *WindowManager) Invalidate() {
	if w.cached != nil {
		w.logger.Debug("🔄 Кеш геометрии окна сброшен")
	}
	w.cached = nil
	w.sinceFresh = 0
}

// ValidateResolution проверяет, что окно соответствует калибровке координат
func (w *WindowManager) ValidateResolution(requiredWidth, requiredHeight int) error {
	geometry, err := w.Resolve()
	if err != nil {
		return err
	}
	if geometry.Width != requiredWidth || geometry.Height != requiredHeight {
		return fmt.Errorf("%w: %dx%d, требуется %dx%d",
			ErrWrongResolution, geometry.Width, geometry.Height, requiredWidth, requiredHeight)
	}
	return nil
}

// DefaultLocator ищет окно игры по скриншоту всего экрана.
// Окно в полноэкранном режиме без рамок: ищем границы черной заливки,
// которой игра окружает картинку при несовпадении соотношения сторон.
func DefaultLocator(cfg config.Config, loggerManager *logger.LoggerManager) Locator {
	return func() (Geometry, error) {
		img, err := screen.CaptureFullScreen()
		if err != nil {
			return Geometry{}, fmt.Errorf("%w: %v", ErrWindowNotFound, err)
		}

		geometry, found := findContentBounds(img, cfg.WindowTopOffset)
		if !found {
			loggerManager.Warn("🔍 Не удалось определить границы окна игры")
			return Geometry{}, ErrWindowNotFound
		}

		loggerManager.Debug("📍 Окно игры: %dx%d на (%d, %d)",
			geometry.Width, geometry.Height, geometry.X, geometry.Y)
		return geometry, nil
	}
}

// findContentBounds определяет границы содержимого, отсекая черные поля по краям
func findContentBounds(img image.Image, topOffset int) (Geometry, bool) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return Geometry{}, false
	}

	// Сканируем центральную строку и центральный столбец:
	// черные поля симметричны, этого достаточно
	midY := bounds.Min.Y + height/2
	left := bounds.Min.X
	for left < bounds.Max.X && isBlack(img, left, midY) {
		left++
	}
	right := bounds.Max.X - 1
	for right > left && isBlack(img, right, midY) {
		right--
	}

	midX := bounds.Min.X + width/2
	top := bounds.Min.Y + topOffset
	for top < bounds.Max.Y && isBlack(img, midX, top) {
		top++
	}
	bottom := bounds.Max.Y - 1
	for bottom > top && isBlack(img, midX, bottom) {
		bottom--
	}

	if right <= left || bottom <= top {
		return Geometry{}, false
	}

	return Geometry{
		X:      left,
		Y:      top,
		Width:  right - left + 1,
		Height: bottom - top + 1,
	}, true
}

// isBlack — пиксель относится к черной заливке вокруг окна
func isBlack(img image.Image, x, y int) bool {
	r, g, b := screen.GetPixelColor(img, x, y)
	return r <= 5 && g <= 5 && b <= 5
}
