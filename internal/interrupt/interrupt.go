package interrupt

import (
	"fmt"

	"github.com/moutend/go-hook/pkg/keyboard"
	"github.com/moutend/go-hook/pkg/types"

	"khomyak/internal/logger"
)

// InterruptManager слушает глобальные горячие клавиши:
// Shift+Enter — запуск автоматизации, Q — кооперативная остановка.
type InterruptManager struct {
	logger *logger.LoggerManager

	keyboardChan chan types.KeyboardEvent
	startChan    chan struct{}
	stopChan     chan struct{}
	shiftDown    bool
}

// NewInterruptManager создает менеджер горячих клавиш
func NewInterruptManager(loggerManager *logger.LoggerManager) *InterruptManager {
	return &InterruptManager{
		logger:       loggerManager,
		keyboardChan: make(chan types.KeyboardEvent, 100),
		startChan:    make(chan struct{}, 1),
		stopChan:     make(chan struct{}, 1),
	}
}

// Start устанавливает глобальный хук клавиатуры
func (m *InterruptManager) Start() error {
	if err := keyboard.Install(nil, m.keyboardChan); err != nil {
		return fmt.Errorf("ошибка установки хука клавиатуры: %w", err)
	}
	go m.monitor()
	m.logger.Info("💡 Горячие клавиши: Shift+Enter — старт, Q — остановка")
	return nil
}

// Stop снимает хук клавиатуры
func (m *InterruptManager) Stop() error {
	return keyboard.Uninstall()
}

// StartRequests — сигналы запуска (Shift+Enter)
func (m *InterruptManager) StartRequests() <-chan struct{} {
	return m.startChan
}

// StopRequests — сигналы остановки (Q)
func (m *InterruptManager) StopRequests() <-chan struct{} {
	return m.stopChan
}

// monitor разбирает события клавиатуры
func (m *InterruptManager) monitor() {
	for event := range m.keyboardChan {
		switch event.Message {
		case types.WM_KEYDOWN, types.WM_SYSKEYDOWN:
			m.handleKeyDown(event.VKCode)
		case types.WM_KEYUP, types.WM_SYSKEYUP:
			if isShift(event.VKCode) {
				m.shiftDown = false
			}
		}
	}
}

func (m *InterruptManager) handleKeyDown(code types.VKCode) {
	switch {
	case isShift(code):
		m.shiftDown = true
	case code == types.VK_RETURN && m.shiftDown:
		m.logger.Info("🚀 Shift+Enter: запрошен запуск")
		signal(m.startChan)
	case code == types.VK_Q:
		m.logger.Info("⏹️ Q: запрошена остановка")
		signal(m.stopChan)
	}
}

func isShift(code types.VKCode) bool {
	return code == types.VK_SHIFT || code == types.VK_LSHIFT || code == types.VK_RSHIFT
}

// signal — неблокирующая отправка: повторные нажатия не копятся
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
