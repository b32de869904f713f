package sampler

import (
	"fmt"
	"image"

	"khomyak/internal/config"
	"khomyak/internal/logger"
	"khomyak/internal/screen"
)

// RegionSampler ищет пиксель эталонного цвета в области экрана
type RegionSampler struct {
	capture screen.CaptureFunc
	logger  *logger.LoggerManager
}

// NewRegionSampler создает сэмплер поверх функции захвата экрана
func NewRegionSampler(capture screen.CaptureFunc, loggerManager *logger.LoggerManager) *RegionSampler {
	return &RegionSampler{
		capture: capture,
		logger:  loggerManager,
	}
}

// ColorsMatch — поканальное сравнение с допуском
func ColorsMatch(r, g, b int, want config.ColorRGB, tolerance int) bool {
	return abs(r-want.R) <= tolerance &&
		abs(g-want.G) <= tolerance &&
		abs(b-want.B) <= tolerance
}

// SearchPixel ищет первый пиксель нужного цвета в области.
// Возвращает абсолютные координаты найденного пикселя.
func (s *RegionSampler) SearchPixel(want config.ColorRGB, area image.Rectangle, tolerance int) (image.Point, bool, error) {
	img, err := s.capture(area)
	if err != nil {
		return image.Point{}, false, fmt.Errorf("ошибка захвата области %v: %w", area, err)
	}

	bounds := img.Bounds()
	step := scanStep(bounds.Dx()*bounds.Dy(), tolerance)

	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b := screen.GetPixelColor(img, x, y)
			if ColorsMatch(r, g, b, want, tolerance) {
				return image.Point{
					X: area.Min.X + (x - bounds.Min.X),
					Y: area.Min.Y + (y - bounds.Min.Y),
				}, true, nil
			}
		}
	}
	return image.Point{}, false, nil
}

// Exists проверяет наличие пикселя нужного цвета в области
func (s *RegionSampler) Exists(want config.ColorRGB, area image.Rectangle, tolerance int) (bool, error) {
	_, found, err := s.SearchPixel(want, area, tolerance)
	return found, err
}

// scanStep подбирает шаг сканирования: большие области сканируем разреженно,
// при большом допуске шаг увеличиваем еще на единицу
func scanStep(area, tolerance int) int {
	step := 1
	if area > 150000 {
		step = 4
	} else if area > 50000 {
		step = 2
	}
	if tolerance > 10 {
		step++
	}
	return step
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
