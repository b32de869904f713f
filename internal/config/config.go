package config

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/spf13/viper"
)

// ColorRGB — эталонный цвет пикселя для проверок
type ColorRGB struct {
	R int `mapstructure:"r"`
	G int `mapstructure:"g"`
	B int `mapstructure:"b"`
}

// CoordinatesWithSize — прямоугольная область относительно окна игры
type CoordinatesWithSize struct {
	X      int `mapstructure:"x"`
	Y      int `mapstructure:"y"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Структура для областей детекции и OCR
type Screenshot struct {
	DropCheck    CoordinatesWithSize `mapstructure:"drop_check"`
	DropFound    CoordinatesWithSize `mapstructure:"drop_found"`
	RewardItems  CoordinatesWithSize `mapstructure:"reward_items"`
	ItemOpen     CoordinatesWithSize `mapstructure:"item_open"`
	OpenButton   CoordinatesWithSize `mapstructure:"open_button"`
	RarityBanner CoordinatesWithSize `mapstructure:"rarity_banner"`
}

// Структура для кликов
type Click struct {
	Drop     image.Point `mapstructure:"drop"`
	OpenItem image.Point `mapstructure:"open_item"`
	Confirm  image.Point `mapstructure:"confirm"`
	Close    image.Point `mapstructure:"close"`
	Back     image.Point `mapstructure:"back"`
}

// Структура для таймингов (в секундах)
type Timing struct {
	InitialDelay      float64 `mapstructure:"initial_delay"`
	ClickDelay        float64 `mapstructure:"click_delay"`
	DropCheckInterval float64 `mapstructure:"drop_check_interval"`
	BackDelay         float64 `mapstructure:"back_delay"`
}

// Структура для настроек OCR
type OCR struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	BackoffMs   int    `mapstructure:"backoff_ms"`
	Whitelist   string `mapstructure:"whitelist"`
	Lang        string `mapstructure:"lang"`
}

// Структура для отладочных дампов изображений
type Debug struct {
	DumpImages  bool   `mapstructure:"dump_images"`
	DumpPolicy  string `mapstructure:"dump_policy"` // failures | always
	Dir         string `mapstructure:"dir"`
	MaxImages   int    `mapstructure:"max_images"` // 0 = без лимита
	ImageFormat string `mapstructure:"image_format"`
	JpegQuality int    `mapstructure:"jpeg_quality"`
}

// Основная структура конфигурации
type Config struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`

	RequiredWidth   int `mapstructure:"required_width"`
	RequiredHeight  int `mapstructure:"required_height"`
	WindowTopOffset int `mapstructure:"window_top_offset"`

	WindowCacheRefreshInterval int `mapstructure:"window_cache_refresh_interval"`
	MaxRevealPolls             int `mapstructure:"max_reveal_polls"`

	ColorShadeTolerance int `mapstructure:"color_shade_tolerance"`
	DropCheckTolerance  int `mapstructure:"drop_check_tolerance"`
	OpenButtonTolerance int `mapstructure:"open_button_tolerance"`

	DropCheckColor          ColorRGB            `mapstructure:"drop_check_color"`
	OpenButtonColor         ColorRGB            `mapstructure:"open_button_color"`
	OpenButtonDisabledColor ColorRGB            `mapstructure:"open_button_disabled_color"`
	RarityColors            map[string]ColorRGB `mapstructure:"rarity_colors"`

	Screenshot Screenshot `mapstructure:"screenshot"`
	Click      Click      `mapstructure:"click"`
	Timing     Timing     `mapstructure:"timing"`
	OCR        OCR        `mapstructure:"ocr"`
	Debug      Debug      `mapstructure:"debug"`

	ItemsFile   string `mapstructure:"items_file"`
	LogFilePath string `mapstructure:"log_file_path"`

	SaveToDB int    `mapstructure:"save_to_db"`
	DBDSN    string `mapstructure:"db_dsn"`
}

// Белый список символов для распознавания названий предметов
const DefaultWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789- '&/:"

// setDefaults задает значения по умолчанию (калибровка под 1920x1080)
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "COM3")
	v.SetDefault("baud_rate", 9600)

	v.SetDefault("required_width", 1920)
	v.SetDefault("required_height", 1080)
	v.SetDefault("window_top_offset", 0)

	v.SetDefault("window_cache_refresh_interval", 10)
	v.SetDefault("max_reveal_polls", 3)

	v.SetDefault("color_shade_tolerance", 10)
	v.SetDefault("drop_check_tolerance", 10)
	v.SetDefault("open_button_tolerance", 10)

	v.SetDefault("drop_check_color", map[string]int{"r": 38, "g": 62, "b": 107})
	v.SetDefault("open_button_color", map[string]int{"r": 0, "g": 2, "b": 3})
	v.SetDefault("open_button_disabled_color", map[string]int{"r": 1, "g": 11, "b": 20})

	// Цвета баннеров редкости
	v.SetDefault("rarity_colors", map[string]map[string]int{
		"black market": {"r": 228, "g": 45, "b": 231},
		"exotic":       {"r": 235, "g": 211, "b": 57},
		"import":       {"r": 255, "g": 64, "b": 64},
		"deluxe":       {"r": 230, "g": 138, "b": 0},
		"special":      {"r": 230, "g": 103, "b": 23},
		"sport":        {"r": 56, "g": 121, "b": 194},
	})

	v.SetDefault("screenshot.drop_check", map[string]int{"x": 100, "y": 100, "width": 180, "height": 181})
	v.SetDefault("screenshot.drop_found", map[string]int{"x": 40, "y": 330, "width": 120, "height": 30})
	v.SetDefault("screenshot.reward_items", map[string]int{"x": 30, "y": 130, "width": 420, "height": 60})
	v.SetDefault("screenshot.item_open", map[string]int{"x": 725, "y": 200, "width": 470, "height": 40})
	v.SetDefault("screenshot.open_button", map[string]int{"x": 45, "y": 895, "width": 215, "height": 45})
	v.SetDefault("screenshot.rarity_banner", map[string]int{"x": 725, "y": 245, "width": 470, "height": 20})

	v.SetDefault("click.drop", map[string]int{"x": 100, "y": 280})
	v.SetDefault("click.open_item", map[string]int{"x": 165, "y": 910})
	v.SetDefault("click.confirm", map[string]int{"x": 850, "y": 610})
	v.SetDefault("click.close", map[string]int{"x": 1050, "y": 990})
	v.SetDefault("click.back", map[string]int{"x": 130, "y": 1030})

	v.SetDefault("timing.initial_delay", 1.0)
	v.SetDefault("timing.click_delay", 0.1)
	v.SetDefault("timing.drop_check_interval", 8.0)
	v.SetDefault("timing.back_delay", 0.5)

	v.SetDefault("ocr.max_attempts", 3)
	v.SetDefault("ocr.backoff_ms", 200)
	v.SetDefault("ocr.whitelist", DefaultWhitelist)
	v.SetDefault("ocr.lang", "eng")

	v.SetDefault("debug.dump_images", false)
	v.SetDefault("debug.dump_policy", "failures")
	v.SetDefault("debug.dir", "debug_images")
	v.SetDefault("debug.max_images", 0)
	v.SetDefault("debug.image_format", "PNG")
	v.SetDefault("debug.jpeg_quality", 85)

	v.SetDefault("items_file", "items.txt")
	v.SetDefault("log_file_path", "")

	v.SetDefault("save_to_db", 0)
	v.SetDefault("db_dsn", "")
}

// InitConfig читает config.yaml, накладывает settings.json и переменные
// окружения (префикс KHOMYAK_) и возвращает итоговую конфигурацию.
// Приоритет: окружение > settings.json > config.yaml > значения по умолчанию.
var InitConfig = func() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Отсутствие config.yaml не ошибка, работаем на значениях по умолчанию
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("ошибка чтения config.yaml: %w", err)
		}
	}

	if err := applySettingsFile(v, SettingsFile); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix("KHOMYAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("ошибка декодирования конфигурации: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate проверяет диапазоны значений, на которых завязана детекция
func (c Config) Validate() error {
	for name, tol := range map[string]int{
		"color_shade_tolerance": c.ColorShadeTolerance,
		"drop_check_tolerance":  c.DropCheckTolerance,
		"open_button_tolerance": c.OpenButtonTolerance,
	} {
		if tol < 0 || tol > 255 {
			return fmt.Errorf("%s вне диапазона [0-255]: %d", name, tol)
		}
	}
	if c.Debug.JpegQuality < 1 || c.Debug.JpegQuality > 100 {
		return fmt.Errorf("debug.jpeg_quality вне диапазона [1-100]: %d", c.Debug.JpegQuality)
	}
	switch strings.ToUpper(c.Debug.ImageFormat) {
	case "PNG", "JPEG":
	default:
		return fmt.Errorf("debug.image_format должен быть PNG или JPEG: %q", c.Debug.ImageFormat)
	}
	switch c.Debug.DumpPolicy {
	case "failures", "always":
	default:
		return fmt.Errorf("debug.dump_policy должен быть failures или always: %q", c.Debug.DumpPolicy)
	}
	if c.OCR.MaxAttempts < 1 {
		return fmt.Errorf("ocr.max_attempts должен быть >= 1: %d", c.OCR.MaxAttempts)
	}
	if c.WindowCacheRefreshInterval < 1 {
		return fmt.Errorf("window_cache_refresh_interval должен быть >= 1: %d", c.WindowCacheRefreshInterval)
	}
	if c.MaxRevealPolls < 1 {
		return fmt.Errorf("max_reveal_polls должен быть >= 1: %d", c.MaxRevealPolls)
	}
	return nil
}

// WithOverrides возвращает копию конфигурации с примененными изменениями,
// не трогая исходную. Используется в тестах и для разовых переопределений.
func (c Config) WithOverrides(mutate func(*Config)) Config {
	clone := c
	// Карта цветов редкостей разделяется при копировании структуры
	if c.RarityColors != nil {
		clone.RarityColors = make(map[string]ColorRGB, len(c.RarityColors))
		for k, col := range c.RarityColors {
			clone.RarityColors[k] = col
		}
	}
	if mutate != nil {
		mutate(&clone)
	}
	return clone
}
