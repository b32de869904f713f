package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

// Engine распознает текст на изображении.
// В тестах подменяется фейком, в бою работает tesseract.
type Engine interface {
	Recognize(img image.Image) (string, error)
}

// TesseractEngine — распознавание через локальный tesseract
type TesseractEngine struct {
	client *gosseract.Client
}

// NewTesseractEngine создает клиент tesseract с белым списком символов.
// Названия предметов — одна строка, поэтому режим PSM_SINGLE_LINE.
func NewTesseractEngine(lang, whitelist string) (*TesseractEngine, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка установки языка OCR: %w", err)
	}
	if err := client.SetWhitelist(whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка установки белого списка OCR: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка установки режима сегментации: %w", err)
	}
	return &TesseractEngine{client: client}, nil
}

// Recognize распознает текст на изображении
func (e *TesseractEngine) Recognize(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("ошибка кодирования изображения для OCR: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("ошибка передачи изображения в tesseract: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("ошибка распознавания текста: %w", err)
	}
	return text, nil
}

// Close освобождает ресурсы tesseract
func (e *TesseractEngine) Close() error {
	return e.client.Close()
}
