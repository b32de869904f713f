package input

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/tarm/serial"

	"khomyak/internal/logger"
	"khomyak/internal/window"
)

// ackTimeout — сколько ждем подтверждение от Arduino
const ackTimeout = 3 * time.Second

// OpenPort открывает последовательный порт к плате Arduino
func OpenPort(name string, baudRate int) (*serial.Port, error) {
	cfg := &serial.Config{
		Name:        name,
		Baud:        baudRate,
		ReadTimeout: ackTimeout,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия порта %s: %w", name, err)
	}
	// Плата перезагружается при открытии порта, даем ей подняться
	time.Sleep(2 * time.Second)
	return port, nil
}

// Driver отправляет команды плате Arduino, которая эмулирует
// физическую мышь и клавиатуру. Протокол текстовый:
// "click:x,y\n", "key:q\n", плата отвечает "received".
type Driver struct {
	port   io.ReadWriter
	reader *bufio.Reader
	logger *logger.LoggerManager
}

// NewDriver создает драйвер поверх открытого порта
func NewDriver(port io.ReadWriter, loggerManager *logger.LoggerManager) *Driver {
	return &Driver{
		port:   port,
		reader: bufio.NewReader(port),
		logger: loggerManager,
	}
}

// Click отправляет клик по абсолютным координатам экрана
func (d *Driver) Click(x, y int) error {
	return d.send(fmt.Sprintf("click:%d,%d", x, y))
}

// PressKey отправляет нажатие клавиши
func (d *Driver) PressKey(key string) error {
	return d.send(fmt.Sprintf("key:%s", key))
}

// send пишет команду и ждет подтверждение платы
func (d *Driver) send(command string) error {
	if _, err := d.port.Write([]byte(command + "\n")); err != nil {
		return fmt.Errorf("ошибка отправки команды %q: %w", command, err)
	}
	if err := d.waitAck(); err != nil {
		return fmt.Errorf("нет подтверждения команды %q: %w", command, err)
	}
	return nil
}

// waitAck читает ответ платы до перевода строки, ожидаем "received"
func (d *Driver) waitAck() error {
	line, err := d.reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}
	response := strings.TrimSpace(line)
	if response != "received" {
		return fmt.Errorf("неожиданный ответ платы: %q", response)
	}
	return nil
}

// ClickManager кликает по координатам относительно окна игры
type ClickManager struct {
	driver     *Driver
	windows    *window.WindowManager
	clickDelay time.Duration
	logger     *logger.LoggerManager
}

// NewClickManager создает менеджер кликов
func NewClickManager(driver *Driver, windows *window.WindowManager, clickDelay time.Duration, loggerManager *logger.LoggerManager) *ClickManager {
	return &ClickManager{
		driver:     driver,
		windows:    windows,
		clickDelay: clickDelay,
		logger:     loggerManager,
	}
}

// ClickAt кликает по точке относительно окна со стандартной паузой после клика
func (m *ClickManager) ClickAt(p image.Point) error {
	return m.ClickAtDelay(p, m.clickDelay)
}

// ClickAtDelay кликает по точке относительно окна с указанной паузой после клика
func (m *ClickManager) ClickAtDelay(p image.Point, delay time.Duration) error {
	geometry, err := m.windows.Resolve()
	if err != nil {
		return fmt.Errorf("ошибка определения окна для клика: %w", err)
	}

	target := geometry.ProjectPoint(p)
	m.logger.Debug("🔘 Клик (%d, %d) -> экран (%d, %d)", p.X, p.Y, target.X, target.Y)

	if err := m.driver.Click(target.X, target.Y); err != nil {
		return err
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return nil
}
