package services

import (
	"encoding/json"
	"strings"

	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
	"gorm.io/gorm"
)

// LogService records queryable activity entries (sync outcomes, queue flush
// results) in the database
type LogService struct {
	db       *gorm.DB
	logLevel models.LogLevel
}

// NewLogService creates a new LogService instance
func NewLogService(db *gorm.DB) *LogService {
	return &LogService{
		db:       db,
		logLevel: models.LogLevelInfo,
	}
}

// NewLogServiceWithLevel creates a new LogService instance with specified log level
func NewLogServiceWithLevel(db *gorm.DB, level string) *LogService {
	return &LogService{
		db:       db,
		logLevel: parseLogLevel(level),
	}
}

// parseLogLevel converts a string to LogLevel
func parseLogLevel(level string) models.LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return models.LogLevelDebug
	case "INFO":
		return models.LogLevelInfo
	case "WARN", "WARNING":
		return models.LogLevelWarn
	case "ERROR":
		return models.LogLevelError
	default:
		return models.LogLevelInfo
	}
}

// shouldLog checks if a log entry should be recorded based on log level
func (s *LogService) shouldLog(level models.LogLevel) bool {
	levelPriority := map[models.LogLevel]int{
		models.LogLevelDebug: 0,
		models.LogLevelInfo:  1,
		models.LogLevelWarn:  2,
		models.LogLevelError: 3,
	}
	return levelPriority[level] >= levelPriority[s.logLevel]
}

// LogEntry represents a log entry to be created
type LogEntry struct {
	Account string
	Level   models.LogLevel
	Module  models.LogModule
	Action  string
	Message string
	Details interface{} // Will be serialized to JSON
}

// Log creates a new log entry
func (s *LogService) Log(entry LogEntry) error {
	if !s.shouldLog(entry.Level) {
		return nil
	}

	var detailsJSON string
	if entry.Details != nil {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			detailsJSON = "{}"
		} else {
			detailsJSON = string(data)
		}
	}

	log := &models.Log{
		Account: entry.Account,
		Level:   string(entry.Level),
		Module:  string(entry.Module),
		Action:  entry.Action,
		Message: entry.Message,
		Details: detailsJSON,
	}

	return s.db.Create(log).Error
}

// LogInfo creates an INFO level log entry
func (s *LogService) LogInfo(account string, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{Account: account, Level: models.LogLevelInfo, Module: module, Action: action, Message: message, Details: details})
}

// LogWarn creates a WARN level log entry
func (s *LogService) LogWarn(account string, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{Account: account, Level: models.LogLevelWarn, Module: module, Action: action, Message: message, Details: details})
}

// LogError creates an ERROR level log entry
func (s *LogService) LogError(account string, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{Account: account, Level: models.LogLevelError, Module: module, Action: action, Message: message, Details: details})
}

// LogQueryOptions filters ListLogs
type LogQueryOptions struct {
	Account string
	Module  string
	Level   string
	Limit   int
}

// ListLogs returns recent log entries, newest first
func (s *LogService) ListLogs(opts LogQueryOptions) ([]models.Log, error) {
	query := s.db.Model(&models.Log{})
	if opts.Account != "" {
		query = query.Where("account = ?", opts.Account)
	}
	if opts.Module != "" {
		query = query.Where("module = ?", opts.Module)
	}
	if opts.Level != "" {
		query = query.Where("level = ?", strings.ToUpper(opts.Level))
	}
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.Log
	err := query.Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// Record implements platform.EventJournal so the daemon backend can persist
// published events for a UI that attaches later
func (s *LogService) Record(evt platform.Event) {
	s.Log(LogEntry{
		Level:   models.LogLevelInfo,
		Module:  models.LogModuleDispatch,
		Action:  "event",
		Message: evt.Type,
		Details: evt.Payload,
	})
}
