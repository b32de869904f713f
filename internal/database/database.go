package database

import (
	"database/sql"
	"fmt"
	"sync"

	"khomyak/internal/items"
	"khomyak/internal/logger"
)

// DatabaseManager — опциональное зеркало результатов в MySQL.
// Источник истины всегда файловое хранилище: ошибки базы логируются
// и не останавливают автоматизацию.
type DatabaseManager struct {
	db     *sql.DB
	logger *logger.LoggerManager
	wg     sync.WaitGroup
}

// NewDatabaseManager подключается к MySQL и готовит схему
func NewDatabaseManager(dsn string, loggerManager *logger.LoggerManager) (*DatabaseManager, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", err)
	}

	m := &DatabaseManager{db: db, logger: loggerManager}
	if err := m.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// ensureSchema создает таблицы, если их еще нет
func (m *DatabaseManager) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS drop_observations (
			id INT AUTO_INCREMENT PRIMARY KEY,
			observed_at DATETIME(3) NOT NULL,
			category VARCHAR(64) NOT NULL,
			item_name VARCHAR(255) NOT NULL,
			drop_index INT NOT NULL,
			session_id VARCHAR(8) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ocr_failures (
			id INT AUTO_INCREMENT PRIMARY KEY,
			session_id VARCHAR(8) NOT NULL,
			label VARCHAR(64) NOT NULL,
			raw_text VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := m.db.Exec(stmt); err != nil {
			return fmt.Errorf("ошибка создания схемы: %w", err)
		}
	}
	return nil
}

// SaveObservationAsync сохраняет наблюдение в фоне, не задерживая цикл
func (m *DatabaseManager) SaveObservationAsync(obs items.Observation, sessionID string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, err := m.db.Exec(
			`INSERT INTO drop_observations (observed_at, category, item_name, drop_index, session_id) VALUES (?, ?, ?, ?, ?)`,
			obs.Timestamp, obs.Category, obs.Name, obs.DropIndex, sessionID,
		)
		if err != nil {
			m.logger.LogError(err, "не удалось сохранить наблюдение в базу")
		}
	}()
}

// SaveOCRFailureAsync сохраняет неудачное распознавание для последующего анализа
func (m *DatabaseManager) SaveOCRFailureAsync(sessionID, label, rawText string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, err := m.db.Exec(
			`INSERT INTO ocr_failures (session_id, label, raw_text) VALUES (?, ?, ?)`,
			sessionID, label, rawText,
		)
		if err != nil {
			m.logger.LogError(err, "не удалось сохранить OCR-сбой в базу")
		}
	}()
}

// Close дожидается фоновых записей и закрывает соединение
func (m *DatabaseManager) Close() error {
	m.wg.Wait()
	return m.db.Close()
}
