package debugimg

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"khomyak/internal/config"
	"khomyak/internal/logger"
)

// SessionRecorder складывает отладочные снимки в директорию сессии:
// debug_images/sessions/<id>/. Каждый запуск автоматизации получает
// свою директорию, старые сессии не затираются.
type SessionRecorder struct {
	enabled   bool
	sessionID string
	dir       string
	format    string
	quality   int
	maxImages int // 0 = без лимита
	logger    *logger.LoggerManager

	saved   int
	dirMade bool
}

// NewSessionRecorder создает рекордер для новой сессии
func NewSessionRecorder(cfg config.Debug, loggerManager *logger.LoggerManager) *SessionRecorder {
	sessionID := uuid.NewString()[:8]
	return &SessionRecorder{
		enabled:   cfg.DumpImages,
		sessionID: sessionID,
		dir:       filepath.Join(cfg.Dir, "sessions", sessionID),
		format:    strings.ToUpper(cfg.ImageFormat),
		quality:   cfg.JpegQuality,
		maxImages: cfg.MaxImages,
		logger:    loggerManager,
	}
}

// SessionID возвращает идентификатор сессии
func (r *SessionRecorder) SessionID() string {
	return r.sessionID
}

// Saved возвращает число сохраненных снимков
func (r *SessionRecorder) Saved() int {
	return r.saved
}

// Record сохраняет снимок с меткой. При выключенной отладке — дешевый no-op.
// Лимит снимков на сессию не превышается никогда.
// Ошибки записи логируются и не прерывают автоматизацию.
func (r *SessionRecorder) Record(img image.Image, label string) {
	if !r.enabled || img == nil {
		return
	}
	if r.maxImages > 0 && r.saved >= r.maxImages {
		r.logger.Debug("📸 Лимит снимков сессии достигнут (%d), %s пропущен", r.maxImages, label)
		return
	}

	if !r.dirMade {
		if err := os.MkdirAll(r.dir, 0755); err != nil {
			r.logger.LogError(err, "не удалось создать директорию сессии")
			return
		}
		r.dirMade = true
	}

	name := fmt.Sprintf("%s_%s.%s", time.Now().Format("150405.000"), sanitize(label), r.ext())
	path := filepath.Join(r.dir, name)

	if err := r.save(img, path); err != nil {
		r.logger.LogError(err, "не удалось сохранить отладочный снимок")
		return
	}

	r.saved++
	r.logger.Debug("📸 Снимок сохранен: %s", path)
}

func (r *SessionRecorder) save(img image.Image, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	defer file.Close()

	if r.format == "JPEG" {
		return jpeg.Encode(file, img, &jpeg.Options{Quality: r.quality})
	}
	return png.Encode(file, img)
}

func (r *SessionRecorder) ext() string {
	if r.format == "JPEG" {
		return "jpg"
	}
	return "png"
}

// sanitize убирает из метки символы, недопустимые в имени файла
func sanitize(label string) string {
	var b strings.Builder
	for _, c := range label {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
