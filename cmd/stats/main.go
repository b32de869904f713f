// Утилита: печать статистики по накопленным результатам без запуска
// автоматизации.
package main

import (
	"fmt"
	"os"

	"khomyak/internal/config"
	"khomyak/internal/items"
	"khomyak/internal/logger"
	"khomyak/internal/stats"
)

func main() {
	cfg, err := config.InitConfig()
	if err != nil {
		fmt.Printf("Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	loggerManager, err := logger.NewLoggerManager(logger.SessionLogPath(cfg.Debug.Dir))
	if err != nil {
		fmt.Printf("Ошибка создания логгера: %v\n", err)
		os.Exit(1)
	}
	defer loggerManager.Close()

	store, err := items.NewStore(cfg.ItemsFile, loggerManager)
	if err != nil {
		loggerManager.LogError(err, "открытие хранилища результатов")
		os.Exit(1)
	}
	defer store.Close()

	fmt.Print(stats.Format(stats.Compute(store.Observations())))
}
