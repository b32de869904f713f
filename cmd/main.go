package main

import (
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"khomyak/internal/config"
	"khomyak/internal/database"
	"khomyak/internal/debugimg"
	"khomyak/internal/input"
	"khomyak/internal/interrupt"
	"khomyak/internal/items"
	"khomyak/internal/logger"
	"khomyak/internal/ocr"
	"khomyak/internal/opener"
	"khomyak/internal/sampler"
	"khomyak/internal/screen"
	"khomyak/internal/stats"
	"khomyak/internal/window"
)

func main() {
	cfg, err := config.InitConfig()
	if err != nil {
		fmt.Printf("Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logPath := cfg.LogFilePath
	if logPath == "" {
		logPath = logger.SessionLogPath(cfg.Debug.Dir)
	}
	loggerManager, err := logger.NewLoggerManager(logPath)
	if err != nil {
		fmt.Printf("Ошибка создания логгера: %v\n", err)
		os.Exit(1)
	}
	defer loggerManager.Close()

	loggerManager.Info("🚀 Запуск автоматизации открытия дропов")

	// Геометрия окна и захват экрана
	windows := window.NewWindowManager(
		window.DefaultLocator(cfg, loggerManager),
		cfg.WindowCacheRefreshInterval,
		loggerManager,
	)
	regionSampler := sampler.NewRegionSampler(screen.CaptureRect, loggerManager)
	recorder := debugimg.NewSessionRecorder(cfg.Debug, loggerManager)
	loggerManager.Info("📸 Сессия отладки: %s", recorder.SessionID())

	// Распознавание текста
	engine, err := ocr.NewTesseractEngine(cfg.OCR.Lang, cfg.OCR.Whitelist)
	if err != nil {
		loggerManager.LogError(err, "инициализация tesseract")
		os.Exit(1)
	}
	defer engine.Close()
	extractor := ocr.NewOCRManager(engine, recorder, cfg.OCR, cfg.Debug.DumpPolicy, loggerManager)

	// Железо для кликов
	port, err := input.OpenPort(cfg.Port, cfg.BaudRate)
	if err != nil {
		loggerManager.LogError(err, "подключение к Arduino")
		os.Exit(1)
	}
	driver := input.NewDriver(port, loggerManager)
	clicks := input.NewClickManager(driver, windows,
		time.Duration(cfg.Timing.ClickDelay*float64(time.Second)), loggerManager)

	// Хранилище результатов
	store, err := items.NewStore(cfg.ItemsFile, loggerManager)
	if err != nil {
		loggerManager.LogError(err, "открытие хранилища результатов")
		os.Exit(1)
	}
	defer store.Close()

	// Опциональное зеркало в MySQL
	var mirror opener.Mirror
	if cfg.SaveToDB == 1 && cfg.DBDSN != "" {
		databaseManager, err := database.NewDatabaseManager(cfg.DBDSN, loggerManager)
		if err != nil {
			loggerManager.LogError(err, "база недоступна, зеркалирование отключено")
		} else {
			defer databaseManager.Close()
			mirror = databaseManager
			loggerManager.Info("💾 Зеркалирование результатов в MySQL включено")
		}
	}

	drops := opener.NewDropOpener(
		cfg, windows, regionSampler, extractor, clicks,
		store, mirror, screen.CaptureRect, recorder.SessionID(), loggerManager,
	)

	// Горячие клавиши
	hotkeys := interrupt.NewInterruptManager(loggerManager)
	if err := hotkeys.Start(); err != nil {
		loggerManager.LogError(err, "установка горячих клавиш")
		os.Exit(1)
	}
	defer hotkeys.Stop()

	go func() {
		for range hotkeys.StopRequests() {
			drops.RequestStop()
		}
	}()
	go func() {
		for event := range drops.Events() {
			loggerManager.Debug("📍 Состояние: %s, дроп #%d %s", event.State, event.DropIndex, event.Detail)
		}
	}()

	for {
		loggerManager.Info("⏸️ Ожидание Shift+Enter для запуска сессии...")
		<-hotkeys.StartRequests()

		if err := drops.Run(); err != nil {
			loggerManager.LogError(err, "сессия завершилась с ошибкой")
		}

		fmt.Println(stats.Format(drops.Report()))
	}
}
