package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// SettingsFile — файл с сохраненными пользовательскими настройками
const SettingsFile = "settings.json"

// Ключи, которые разрешено сохранять в settings.json
var knownSettings = map[string]bool{
	"debug.dump_images":             true,
	"debug.dump_policy":             true,
	"debug.dir":                     true,
	"debug.max_images":              true,
	"debug.image_format":            true,
	"debug.jpeg_quality":            true,
	"color_shade_tolerance":         true,
	"drop_check_tolerance":          true,
	"open_button_tolerance":         true,
	"timing.initial_delay":          true,
	"timing.drop_check_interval":    true,
	"items_file":                    true,
	"log_file_path":                 true,
	"window_cache_refresh_interval": true,
	"max_reveal_polls":              true,
}

// applySettingsFile накладывает сохраненные настройки поверх config.yaml.
// Ключ пропускается, если соответствующая переменная окружения уже задана:
// окружение имеет приоритет над файлом настроек.
func applySettingsFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка чтения %s: %w", path, err)
	}

	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("некорректный JSON в %s: %w", path, err)
	}

	for key, value := range settings {
		if !knownSettings[key] {
			continue
		}
		if _, ok := os.LookupEnv(envName(key)); ok {
			continue
		}
		v.Set(key, value)
	}
	return nil
}

// SaveSettings сохраняет известные настройки в settings.json.
// Неизвестные ключи отбрасываются.
func SaveSettings(path string, settings map[string]interface{}) error {
	filtered := make(map[string]interface{})
	for key, value := range settings {
		if knownSettings[key] {
			filtered[key] = value
		}
	}
	if len(filtered) == 0 {
		return fmt.Errorf("нет известных настроек для сохранения")
	}

	data, err := json.MarshalIndent(filtered, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации настроек: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", path, err)
	}
	return nil
}

// envName превращает ключ настройки в имя переменной окружения:
// timing.initial_delay -> KHOMYAK_TIMING_INITIAL_DELAY
func envName(key string) string {
	return "KHOMYAK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
