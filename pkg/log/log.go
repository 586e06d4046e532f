// Package log provides the process-wide zerolog logger, optionally persisting
// JSON log lines into an SQLite database so they can be queried later.
package log

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

var (
	writesSinceStart atomic.Int64
	pkgLogger        = nopLogger()
	console          io.Writer
	level            = zerolog.InfoLevel
	sink             *sqliteWriter
	mu               sync.RWMutex

	// fixed width and always UTC, so stored times order correctly as strings
	timeFieldFormat = "2006-01-02T15:04:05.000000000Z07:00"
	clock           = time.Now

	ErrNotInitialized = errors.New("log: sqlite sink not initialized, call log.Init() first")
)

type sqliteWriter struct {
	db   *sql.DB
	stmt *sql.Stmt
	mu   sync.Mutex
}

func newSQLiteWriter(dbPath string) (*sqliteWriter, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode=wal&_pragma=busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db %s: %w", dbPath, err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db %s: %w", dbPath, err)
	}

	_, err = db.Exec(`
    CREATE TABLE IF NOT EXISTS logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        inserted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
        log_data TEXT NOT NULL
    );`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create logs table: %w", err)
	}
	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_logs_json_time ON logs (json_extract(log_data, '$.time'));`); err != nil {
		stdlog.Printf("Warning: failed to create JSON time index: %v\n", err)
	}

	stmt, err := db.Prepare(`INSERT INTO logs (log_data) VALUES (?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	return &sqliteWriter{db: db, stmt: stmt}, nil
}

func (w *sqliteWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stmt == nil {
		return 0, ErrNotInitialized
	}
	if _, err := w.stmt.Exec(string(p)); err != nil {
		return 0, err
	}
	writesSinceStart.Add(1)
	return len(p), nil
}

func (w *sqliteWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	if w.stmt != nil {
		errs = append(errs, w.stmt.Close())
		w.stmt = nil
	}
	if w.db != nil {
		errs = append(errs, w.db.Close())
		w.db = nil
	}
	return errors.Join(errs...)
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func utcNow() time.Time { return clock().UTC() }

// rebuild must be called with mu held.
func rebuild() {
	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}
	if sink != nil {
		writers = append(writers, sink)
	}
	if len(writers) == 0 {
		pkgLogger = nopLogger()
		return
	}
	zerolog.TimeFieldFormat = timeFieldFormat
	zerolog.TimestampFunc = utcNow
	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	pkgLogger = &l
}

// SetStd enables human-readable console output on stdout.
func SetStd(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if debug {
		level = zerolog.DebugLevel
	} else {
		level = zerolog.InfoLevel
	}
	rebuild()
}

// Init additionally persists every log line into the SQLite database at dbPath.
func Init(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("logger needs an explicit dbPath")
	}
	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		return fmt.Errorf("logger already initialized")
	}
	w, err := newSQLiteWriter(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite writer: %w", err)
	}
	sink = w
	rebuild()
	return nil
}

// Close detaches and closes the SQLite sink. Console output, if enabled, is kept.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if sink == nil {
		return nil
	}
	w := sink
	sink = nil
	rebuild()
	if err := w.close(); err != nil {
		return fmt.Errorf("error closing SQLite logger: %w", err)
	}
	return nil
}

func logger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return pkgLogger
}

func Debug() *zerolog.Event { return logger().Debug() }
func Info() *zerolog.Event  { return logger().Info() }
func Warn() *zerolog.Event  { return logger().Warn() }
func Error() *zerolog.Event { return logger().Error() }
func Fatal() *zerolog.Event { return logger().Fatal() }

// Printf sends a log event using info level and no extra field.
func Printf(format string, v ...any) {
	logger().Info().CallerSkipFrame(1).Msgf(format, v...)
}

func Fatalf(format string, v ...any) {
	logger().Fatal().Msgf(format, v...)
}

// --- retrieval ---

type LogEntry struct {
	ID         int64     `json:"id"`
	InsertedAt time.Time `json:"inserted_at"`
	LogData    string    `json:"log_data"`
}

const DefaultLimit = 100

func handle() (*sql.DB, error) {
	mu.RLock()
	defer mu.RUnlock()
	if sink == nil || sink.db == nil {
		return nil, ErrNotInitialized
	}
	return sink.db, nil
}

func parseDBTimestamp(ts string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Time{}
}

func scanEntries(rows *sql.Rows) ([]LogEntry, error) {
	defer rows.Close()
	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var insertedAt string
		if err := rows.Scan(&e.ID, &insertedAt, &e.LogData); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.InsertedAt = parseDBTimestamp(insertedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log rows: %w", err)
	}
	return entries, nil
}

// WritesSinceStart reports how many lines this process persisted.
func WritesSinceStart() int64 {
	return writesSinceStart.Load()
}

// GetLastNLogs returns the n most recent entries in chronological order.
func GetLastNLogs(n int) ([]LogEntry, error) {
	db, err := handle()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []LogEntry{}, nil
	}
	rows, err := db.Query(`SELECT id, inserted_at, log_data FROM logs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query last %d logs: %w", n, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// formatTime renders t the way the logger stores event times.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFieldFormat)
}

// GetLogsSince returns entries whose event time is at or after start.
// A limit <= 0 means DefaultLimit.
func GetLogsSince(start time.Time, limit int) ([]LogEntry, error) {
	db, err := handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := db.Query(`
        SELECT id, inserted_at, log_data
        FROM logs
        WHERE json_extract(log_data, '$.time') >= ?
        ORDER BY json_extract(log_data, '$.time') ASC, id ASC
        LIMIT ?`, formatTime(start), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs since %s: %w", start, err)
	}
	return scanEntries(rows)
}

// GetLogsBetween returns entries whose event time falls in [start, end].
// A limit <= 0 means DefaultLimit.
func GetLogsBetween(start, end time.Time, limit int) ([]LogEntry, error) {
	db, err := handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := db.Query(`
        SELECT id, inserted_at, log_data
        FROM logs
        WHERE json_extract(log_data, '$.time') BETWEEN ? AND ?
        ORDER BY json_extract(log_data, '$.time') ASC, id ASC
        LIMIT ?`, formatTime(start), formatTime(end), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs between %s and %s: %w", start, end, err)
	}
	return scanEntries(rows)
}
