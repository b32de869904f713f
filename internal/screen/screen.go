package screen

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// CaptureFunc — сигнатура захвата области экрана в абсолютных координатах.
// Используется для подмены захвата в тестах.
type CaptureFunc func(bounds image.Rectangle) (image.Image, error)

// CaptureRect захватывает область экрана в память
func CaptureRect(bounds image.Rectangle) (image.Image, error) {
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("ошибка захвата области %v: %w", bounds, err)
	}
	return img, nil
}

// CaptureFullScreen захватывает основной дисплей целиком
func CaptureFullScreen() (image.Image, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("не найдено ни одного дисплея")
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(0))
	if err != nil {
		return nil, fmt.Errorf("ошибка захвата экрана: %w", err)
	}
	return img, nil
}

// GetPixelColor возвращает цвет пикселя изображения в 8-битных каналах
func GetPixelColor(img image.Image, x, y int) (int, int, int) {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
		return 0, 0, 0
	}
	r, g, b, _ := img.At(x, y).RGBA()
	return int(r >> 8), int(g >> 8), int(b >> 8)
}
