package debugimg

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"khomyak/internal/config"
	"khomyak/internal/logger"
)

func newTestLogger(t *testing.T) *logger.LoggerManager {
	t.Helper()
	lm, err := logger.NewLoggerManager(filepath.Join(t.TempDir(), "test.log"))
	if err != nil {
		t.Fatalf("создание логгера: %v", err)
	}
	t.Cleanup(func() { lm.Close() })
	return lm
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func testDebugConfig(dir string) config.Debug {
	return config.Debug{
		DumpImages:  true,
		DumpPolicy:  "failures",
		Dir:         dir,
		MaxImages:   0,
		ImageFormat: "PNG",
		JpegQuality: 85,
	}
}

func sessionFiles(t *testing.T, r *SessionRecorder) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("чтение директории сессии: %v", err)
	}
	return entries
}

func TestRecordSavesImages(t *testing.T) {
	dir := t.TempDir()
	r := NewSessionRecorder(testDebugConfig(dir), newTestLogger(t))

	r.Record(testImage(), "item_name_attempt1")
	r.Record(testImage(), "drop_category_attempt1")

	if r.Saved() != 2 {
		t.Errorf("Saved() = %d, ожидалось 2", r.Saved())
	}
	if got := len(sessionFiles(t, r)); got != 2 {
		t.Errorf("файлов в сессии %d, ожидалось 2", got)
	}

	// Директория сессии лежит под sessions/<id>
	want := filepath.Join(dir, "sessions", r.SessionID())
	if r.dir != want {
		t.Errorf("директория сессии %q, ожидалось %q", r.dir, want)
	}
	if len(r.SessionID()) != 8 {
		t.Errorf("идентификатор сессии %q, ожидалось 8 символов", r.SessionID())
	}
}

func TestRecordRespectsLimit(t *testing.T) {
	cfg := testDebugConfig(t.TempDir())
	cfg.MaxImages = 5
	r := NewSessionRecorder(cfg, newTestLogger(t))

	for i := 0; i < 6; i++ {
		r.Record(testImage(), "label")
	}

	// Шестой снимок молча пропущен
	if r.Saved() != 5 {
		t.Errorf("Saved() = %d, ожидалось 5", r.Saved())
	}
	if got := len(sessionFiles(t, r)); got != 5 {
		t.Errorf("файлов %d, ожидалось 5", got)
	}
}

func TestRecordDisabledIsNoop(t *testing.T) {
	cfg := testDebugConfig(t.TempDir())
	cfg.DumpImages = false
	r := NewSessionRecorder(cfg, newTestLogger(t))

	r.Record(testImage(), "label")

	if r.Saved() != 0 {
		t.Errorf("Saved() = %d, ожидалось 0", r.Saved())
	}
	if _, err := os.Stat(r.dir); !os.IsNotExist(err) {
		t.Error("при выключенной отладке директория сессии не должна создаваться")
	}
}

func TestRecordJPEGFormat(t *testing.T) {
	cfg := testDebugConfig(t.TempDir())
	cfg.ImageFormat = "JPEG"
	r := NewSessionRecorder(cfg, newTestLogger(t))

	r.Record(testImage(), "label")

	files := sessionFiles(t, r)
	if len(files) != 1 {
		t.Fatalf("файлов %d, ожидался 1", len(files))
	}
	if filepath.Ext(files[0].Name()) != ".jpg" {
		t.Errorf("расширение %q, ожидалось .jpg", filepath.Ext(files[0].Name()))
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"item_name_attempt1", "item_name_attempt1"},
		{"а/б:в*г", "_______"},
		{"label-1", "label-1"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}
