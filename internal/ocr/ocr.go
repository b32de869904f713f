package ocr

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"khomyak/internal/config"
	"khomyak/internal/logger"
	"khomyak/internal/normalize"
)

// ErrLowConfidence — текст не удалось распознать уверенно за все попытки
var ErrLowConfidence = errors.New("текст не распознан уверенно")

// minAcceptShare — минимальная доля символов из белого списка,
// при которой результат считается осмысленным
const minAcceptShare = 0.6

// Recorder принимает снимки для отладочной сессии
type Recorder interface {
	Record(img image.Image, label string)
}

// OCRManager распознает текст с повторными попытками.
// Каждая попытка захватывает область заново: между попытками
// анимация на экране могла доиграть.
type OCRManager struct {
	engine      Engine
	recorder    Recorder
	dumpPolicy  string
	maxAttempts int
	backoff     time.Duration
	whitelist   map[rune]bool
	logger      *logger.LoggerManager

	// Подменяется в тестах, чтобы не ждать настоящие задержки
	sleep func(time.Duration)
}

// NewOCRManager создает менеджер распознавания
func NewOCRManager(engine Engine, recorder Recorder, cfg config.OCR, dumpPolicy string, loggerManager *logger.LoggerManager) *OCRManager {
	whitelist := make(map[rune]bool, len(cfg.Whitelist))
	for _, r := range cfg.Whitelist {
		whitelist[r] = true
	}
	whitelist[' '] = true

	return &OCRManager{
		engine:      engine,
		recorder:    recorder,
		dumpPolicy:  dumpPolicy,
		maxAttempts: cfg.MaxAttempts,
		backoff:     time.Duration(cfg.BackoffMs) * time.Millisecond,
		whitelist:   whitelist,
		logger:      loggerManager,
		sleep:       time.Sleep,
	}
}

// ExtractText распознает текст области с повторами и экспоненциальной паузой.
// capture вызывается на каждую попытку. При исчерпании попыток
// возвращает ErrLowConfidence.
func (m *OCRManager) ExtractText(capture func() (image.Image, error), label string) (string, error) {
	backoff := m.backoff
	var lastText string

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		img, err := capture()
		if err != nil {
			return "", fmt.Errorf("ошибка захвата области для OCR (%s): %w", label, err)
		}

		text, accepted := m.recognizeOnce(img, label, attempt)
		if accepted {
			if attempt > 1 {
				m.logger.Debug("🔍 OCR %s: успех с попытки %d: %q", label, attempt, text)
			}
			return text, nil
		}
		lastText = text

		if attempt < m.maxAttempts {
			m.logger.Debug("🔍 OCR %s: попытка %d не удалась, пауза %v", label, attempt, backoff)
			m.sleep(backoff)
			backoff *= 2
		}
	}

	m.logger.Warn("⚠️ OCR %s: %d попыток исчерпано, лучший результат %q", label, m.maxAttempts, lastText)
	return "", fmt.Errorf("%w: %s", ErrLowConfidence, label)
}

// recognizeOnce — одна попытка: препроцессинг, распознавание, проверка
// осмысленности, дамп снимка по политике
func (m *OCRManager) recognizeOnce(img image.Image, label string, attempt int) (string, bool) {
	text, err := m.engine.Recognize(Preprocess(img))
	if err != nil {
		m.logger.LogError(err, fmt.Sprintf("OCR %s, попытка %d", label, attempt))
		text = ""
	}

	cleaned := normalize.CleanText(text)
	accepted := err == nil && m.plausible(cleaned)

	if m.recorder != nil {
		if m.dumpPolicy == "always" || (m.dumpPolicy == "failures" && !accepted) {
			m.recorder.Record(img, fmt.Sprintf("%s_attempt%d", label, attempt))
		}
	}
	return cleaned, accepted
}

// plausible — грубая замена confidence, которого tesseract через gosseract
// не отдает: результат непустой и почти целиком из белого списка
func (m *OCRManager) plausible(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	total, ok := 0, 0
	for _, r := range text {
		total++
		if m.whitelist[r] {
			ok++
		}
	}
	return float64(ok)/float64(total) >= minAcceptShare
}
