package opener

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"khomyak/internal/config"
	"khomyak/internal/items"
	"khomyak/internal/logger"
	"khomyak/internal/window"
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

func testConfig() config.Config {
	return config.Config{
		RequiredWidth:              1920,
		RequiredHeight:             1080,
		WindowCacheRefreshInterval: 10,
		MaxRevealPolls:             2,
		ColorShadeTolerance:        10,
		DropCheckTolerance:         10,
		OpenButtonTolerance:        10,
		DropCheckColor:             config.ColorRGB{R: 38, G: 62, B: 107},
		OpenButtonColor:            config.ColorRGB{R: 0, G: 2, B: 3},
		OpenButtonDisabledColor:    config.ColorRGB{R: 1, G: 11, B: 20},
		RarityColors: map[string]config.ColorRGB{
			"exotic": {R: 235, G: 211, B: 57},
			"sport":  {R: 56, G: 121, B: 194},
		},
		Screenshot: config.Screenshot{
			DropCheck:    config.CoordinatesWithSize{X: 100, Y: 100, Width: 180, Height: 181},
			DropFound:    config.CoordinatesWithSize{X: 40, Y: 330, Width: 120, Height: 30},
			RewardItems:  config.CoordinatesWithSize{X: 30, Y: 130, Width: 420, Height: 60},
			ItemOpen:     config.CoordinatesWithSize{X: 725, Y: 200, Width: 470, Height: 40},
			OpenButton:   config.CoordinatesWithSize{X: 45, Y: 895, Width: 215, Height: 45},
			RarityBanner: config.CoordinatesWithSize{X: 725, Y: 245, Width: 470, Height: 20},
		},
		Click: config.Click{
			Drop:     image.Point{X: 100, Y: 280},
			OpenItem: image.Point{X: 165, Y: 910},
			Confirm:  image.Point{X: 850, Y: 610},
			Close:    image.Point{X: 1050, Y: 990},
			Back:     image.Point{X: 130, Y: 1030},
		},
		Timing: config.Timing{
			InitialDelay:      0,
			ClickDelay:        0,
			DropCheckInterval: 8.0,
			BackDelay:         0,
		},
	}
}

type fakeWindows struct {
	geometry    window.Geometry
	err         error
	resolves    int
	invalidates int
}

func (f *fakeWindows) Resolve() (window.Geometry, error) {
	f.resolves++
	if f.err != nil {
		return window.Geometry{}, f.err
	}
	return f.geometry, nil
}

func (f *fakeWindows) Invalidate() { f.invalidates++ }

// fakeSampler отвечает по заранее заданному сценарию, различая
// запросы по эталонному цвету
type fakeSampler struct {
	cfg         config.Config
	dropPresent []bool
	openEnabled []bool
	reveal      bool
}

func pop(queue *[]bool) bool {
	if len(*queue) == 0 {
		return false
	}
	v := (*queue)[0]
	*queue = (*queue)[1:]
	return v
}

func (f *fakeSampler) Exists(want config.ColorRGB, area image.Rectangle, tolerance int) (bool, error) {
	switch want {
	case f.cfg.DropCheckColor:
		return pop(&f.dropPresent), nil
	case f.cfg.OpenButtonColor:
		return pop(&f.openEnabled), nil
	case f.cfg.OpenButtonDisabledColor:
		return true, nil
	default:
		// Цвета баннеров редкости
		return f.reveal, nil
	}
}

type ocrResult struct {
	text string
	err  error
}

type fakeExtractor struct {
	responses map[string][]ocrResult
}

func (f *fakeExtractor) ExtractText(capture func() (image.Image, error), label string) (string, error) {
	queue := f.responses[label]
	if len(queue) == 0 {
		return "", errors.New("сценарий для " + label + " исчерпан")
	}
	r := queue[0]
	f.responses[label] = queue[1:]
	return r.text, r.err
}

type fakeClicker struct {
	clicks []image.Point
}

func (f *fakeClicker) ClickAt(p image.Point) error {
	f.clicks = append(f.clicks, p)
	return nil
}

func (f *fakeClicker) ClickAtDelay(p image.Point, delay time.Duration) error {
	f.clicks = append(f.clicks, p)
	return nil
}

// captureExoticBanner — каждый захват возвращает заливку цветом
// баннера Exotic
func captureExoticBanner(bounds image.Rectangle) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	fill := color.RGBA{R: 235, G: 211, B: 57, A: 255}
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	return img, nil
}

func newTestStore(t *testing.T) *items.Store {
	t.Helper()
	s, err := items.NewStore(filepath.Join(t.TempDir(), "items.txt"), newTestLogger(t))
	if err != nil {
		t.Fatalf("открытие хранилища: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestOpener(t *testing.T, cfg config.Config, windows WindowCache, s *fakeSampler, e *fakeExtractor, c *fakeClicker, store *items.Store) *DropOpener {
	t.Helper()
	o := NewDropOpener(cfg, windows, s, e, c, store, nil, captureExoticBanner, "test0000", newTestLogger(t))
	o.sleep = func(time.Duration) {}
	return o
}

func drainEvents(o *DropOpener) []Event {
	var events []Event
	for {
		select {
		case event := <-o.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func hasState(events []Event, state State) bool {
	for _, event := range events {
		if event.State == state {
			return true
		}
	}
	return false
}

func TestRunOpensAndRecordsDrop(t *testing.T) {
	cfg := testConfig()
	windows := &fakeWindows{geometry: window.Geometry{X: 0, Y: 0, Width: 1920, Height: 1080}}
	regionSampler := &fakeSampler{
		cfg:         cfg,
		dropPresent: []bool{true},
		openEnabled: []bool{true, false},
		reveal:      true,
	}
	extractor := &fakeExtractor{responses: map[string][]ocrResult{
		"reward_items":  {{text: "REWARD ITEMS"}, {text: "список пуст"}},
		"drop_category": {{text: "Exotic"}},
		"item_name":     {{text: "exotic wheels"}},
	}}
	clicks := &fakeClicker{}
	store := newTestStore(t)

	o := newTestOpener(t, cfg, windows, regionSampler, extractor, clicks, store)
	if err := o.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := store.Observations()
	if len(got) != 1 {
		t.Fatalf("записано %d наблюдений, ожидалось 1", len(got))
	}
	if got[0].Category != "Exotic Drop" {
		t.Errorf("категория %q, ожидалось Exotic Drop", got[0].Category)
	}
	if got[0].Name != "Exotic Wheels" {
		t.Errorf("название %q, ожидалось Exotic Wheels", got[0].Name)
	}
	if got[0].DropIndex != 1 {
		t.Errorf("номер дропа %d, ожидался 1", got[0].DropIndex)
	}

	events := drainEvents(o)
	for _, state := range []State{StateIdle, StateAwaitingOpen, StateAwaitingReveal, StateDetecting, StateClassifying, StateRecorded, StateStopped} {
		if !hasState(events, state) {
			t.Errorf("событие %v не отправлено", state)
		}
	}
}

func TestRunFuzzyMatchesKnownItem(t *testing.T) {
	cfg := testConfig()
	windows := &fakeWindows{geometry: window.Geometry{Width: 1920, Height: 1080}}
	store := newTestStore(t)
	store.Append(items.Observation{
		Timestamp: time.Now(), Category: "Exotic Drop", Name: "Exotic Wheels", DropIndex: 1,
	})

	regionSampler := &fakeSampler{
		cfg:         cfg,
		dropPresent: []bool{true},
		openEnabled: []bool{true, false},
		reveal:      true,
	}
	// OCR перепутал l и 1
	extractor := &fakeExtractor{responses: map[string][]ocrResult{
		"reward_items":  {{text: "REWARD ITEMS"}, {text: ""}},
		"drop_category": {{text: "Exotic"}},
		"item_name":     {{text: "Exotic Whee1s"}},
	}}

	o := newTestOpener(t, cfg, windows, regionSampler, extractor, &fakeClicker{}, store)
	if err := o.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := store.Observations()
	if len(got) != 2 {
		t.Fatalf("наблюдений %d, ожидалось 2", len(got))
	}
	if got[1].Name != "Exotic Wheels" {
		t.Errorf("название %q, ожидалось сопоставление с Exotic Wheels", got[1].Name)
	}
}

func TestRunStopsOnRequest(t *testing.T) {
	cfg := testConfig()
	windows := &fakeWindows{geometry: window.Geometry{Width: 1920, Height: 1080}}
	regionSampler := &fakeSampler{cfg: cfg} // дроп не появляется
	extractor := &fakeExtractor{responses: map[string][]ocrResult{
		"reward_items": {{text: "REWARD ITEMS"}},
	}}

	o := newTestOpener(t, cfg, windows, regionSampler, extractor, &fakeClicker{}, newTestStore(t))
	// Останавливаем во время паузы ожидания дропа
	o.sleep = func(d time.Duration) {
		if d == 500*time.Millisecond {
			o.RequestStop()
		}
	}

	if err := o.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(o.store.Observations()) != 0 {
		t.Error("наблюдений быть не должно")
	}
	events := drainEvents(o)
	if !hasState(events, StateStopped) {
		t.Error("событие Stopped не отправлено")
	}
}

func TestStopDoesNotInterruptRecording(t *testing.T) {
	cfg := testConfig()
	windows := &fakeWindows{geometry: window.Geometry{Width: 1920, Height: 1080}}
	regionSampler := &fakeSampler{
		cfg:         cfg,
		dropPresent: []bool{true},
		openEnabled: []bool{true},
		reveal:      true,
	}
	extractor := &fakeExtractor{responses: map[string][]ocrResult{
		"reward_items":  {{text: "REWARD ITEMS"}},
		"drop_category": {{text: "Import"}},
		"item_name":     {{text: "import body"}},
	}}
	store := newTestStore(t)

	o := newTestOpener(t, cfg, windows, regionSampler, extractor, &fakeClicker{}, store)
	// Остановка запрошена во время ожидания анимации: предмет уже открыт,
	// результат обязан быть записан
	o.sleep = func(d time.Duration) {
		if d == 8*time.Second {
			o.RequestStop()
		}
	}

	if err := o.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := store.Observations()
	if len(got) != 1 {
		t.Fatalf("наблюдений %d, ожидалось 1: открытый предмет должен быть записан", len(got))
	}
	if got[0].Name != "Import Body" {
		t.Errorf("название %q", got[0].Name)
	}
}

func TestRunDetectionTimeoutSkipsItem(t *testing.T) {
	cfg := testConfig()
	windows := &fakeWindows{geometry: window.Geometry{Width: 1920, Height: 1080}}
	regionSampler := &fakeSampler{
		cfg:         cfg,
		dropPresent: []bool{true},
		openEnabled: []bool{true, false},
		reveal:      false, // анимация не завершается никогда
	}
	extractor := &fakeExtractor{responses: map[string][]ocrResult{
		"reward_items":  {{text: "REWARD ITEMS"}, {text: ""}},
		"drop_category": {{text: "Sport"}},
	}}
	store := newTestStore(t)

	o := newTestOpener(t, cfg, windows, regionSampler, extractor, &fakeClicker{}, store)
	if err := o.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.Observations()) != 0 {
		t.Error("при таймауте детекции предмет не должен записываться")
	}
	if o.ocrFailures == 0 {
		t.Error("таймаут детекции должен учитываться как сбой")
	}
}

func TestRunWrongResolution(t *testing.T) {
	cfg := testConfig()
	windows := &fakeWindows{geometry: window.Geometry{Width: 1280, Height: 720}}

	o := newTestOpener(t, cfg, windows, &fakeSampler{cfg: cfg}, &fakeExtractor{}, &fakeClicker{}, newTestStore(t))
	err := o.Run()
	if !errors.Is(err, window.ErrWrongResolution) {
		t.Errorf("ожидался ErrWrongResolution, получено %v", err)
	}
}

func TestRunGeometryFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	windows := &fakeWindows{err: window.ErrWindowNotFound}

	o := newTestOpener(t, cfg, windows, &fakeSampler{cfg: cfg}, &fakeExtractor{}, &fakeClicker{}, newTestStore(t))
	err := o.Run()
	if !errors.Is(err, window.ErrWindowNotFound) {
		t.Errorf("ожидался ErrWindowNotFound, получено %v", err)
	}
}

func TestRunUnknownItemNameStillRecorded(t *testing.T) {
	cfg := testConfig()
	windows := &fakeWindows{geometry: window.Geometry{Width: 1920, Height: 1080}}
	regionSampler := &fakeSampler{
		cfg:         cfg,
		dropPresent: []bool{true},
		openEnabled: []bool{true, false},
		reveal:      true,
	}
	extractor := &fakeExtractor{responses: map[string][]ocrResult{
		"reward_items":  {{text: "REWARD ITEMS"}, {text: ""}},
		"drop_category": {{text: "Exotic"}},
		"item_name":     {{err: errors.New("текст не распознан уверенно")}},
	}}
	store := newTestStore(t)

	o := newTestOpener(t, cfg, windows, regionSampler, extractor, &fakeClicker{}, store)
	if err := o.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := store.Observations()
	if len(got) != 1 {
		t.Fatalf("наблюдений %d, ожидалось 1: дроп потрачен и должен быть учтен", len(got))
	}
	if got[0].Name != "Unknown" {
		t.Errorf("название %q, ожидалось Unknown", got[0].Name)
	}
	// Редкость определена по цвету баннера, несмотря на сбой OCR
	if got[0].Category != "Exotic Drop" {
		t.Errorf("категория %q, ожидалось Exotic Drop", got[0].Category)
	}
}

func TestReport(t *testing.T) {
	store := newTestStore(t)
	store.Append(items.Observation{Timestamp: time.Now(), Category: "Import Drop", Name: "A", DropIndex: 1})
	store.Append(items.Observation{Timestamp: time.Now(), Category: "Import Drop", Name: "A", DropIndex: 2})

	cfg := testConfig()
	o := newTestOpener(t, cfg, &fakeWindows{geometry: window.Geometry{Width: 1920, Height: 1080}},
		&fakeSampler{cfg: cfg}, &fakeExtractor{}, &fakeClicker{}, store)

	report := o.Report()
	if report.Total != 2 {
		t.Errorf("Total = %d, ожидалось 2", report.Total)
	}
}
