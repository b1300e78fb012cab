package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	RollbackMonitoring = "rollback_mod" // Rollback coordinator steps
	LedgerMonitoring   = "ledger_mod"   // Height ledger reads and writes
	UtxoMonitoring     = "utxo_mod"     // UTXO lock chain walks
	TrieMonitoring     = "trie_mod"     // Trie snapshot extraction
	StorageMonitoring  = "storage_mod"  // Backend open/close, tier traffic
	ExecutorMonitoring = "executor_mod" // Executor statedb / nosql
	BackupMonitoring   = "backup_mod"   // Backup and export pipelines
)

var root atomic.Value

func init() {
	root.Store(&logger{slog.New(DiscardHandler())})
}

func ParseLevel(lvl string) (slog.Level, error) {
	switch strings.ToUpper(lvl) {
	case "MAX", "MAXVERBOSITY":
		return levelMaxVerbosity, nil
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "CRIT", "CRITICAL":
		return LevelCrit, nil
	default:
		return 0, fmt.Errorf("invalid level: %s", lvl)
	}
}

func InitLogger(logLevel string) error {
	logLvl, err := ParseLevel(logLevel)
	if err != nil {
		return err
	}
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(os.Stderr, logLvl)))
	return nil
}

// SetDefault sets the default global logger
func SetDefault(l Logger) {
	root.Store(l)
	if lg, ok := l.(*logger); ok {
		slog.SetDefault(lg.inner)
	}
}

// Root returns the root logger
func Root() Logger {
	return root.Load().(Logger)
}

// --- Module management ---
// moduleEnabled keeps track of whether a module's debug/trace logging is enabled.
var (
	moduleMu      sync.RWMutex
	moduleEnabled = map[string]bool{}
)

// EnableModule enables debug and trace logging for the specified module.
func EnableModule(module string) {
	moduleMu.Lock()
	moduleEnabled[module] = true
	moduleMu.Unlock()
}

// EnableModules takes a comma separated module list, e.g. "utxo_mod,trie_mod".
func EnableModules(modules string) {
	for _, m := range strings.Split(modules, ",") {
		if m = strings.TrimSpace(m); m != "" {
			EnableModule(m)
		}
	}
}

// DisableModule disables debug and trace logging for the specified module.
func DisableModule(module string) {
	moduleMu.Lock()
	moduleEnabled[module] = false
	moduleMu.Unlock()
}

func isModuleEnabled(module string) bool {
	moduleMu.RLock()
	defer moduleMu.RUnlock()
	return moduleEnabled[module]
}

// Trace logs a message at the trace level for a specific module.
func Trace(module string, msg string, ctx ...interface{}) {
	if !isModuleEnabled(module) {
		return
	}
	Root().Write(LevelTrace, module, msg, ctx...)
}

// Debug logs a message at the debug level for a specific module.
func Debug(module string, msg string, ctx ...interface{}) {
	if !isModuleEnabled(module) {
		return
	}
	Root().Write(slog.LevelDebug, module, msg, ctx...)
}

// The rest of the logging functions (Info, Warn, Error, Crit) dont filter on module
func Info(module string, msg string, ctx ...interface{}) {
	Root().Write(slog.LevelInfo, module, msg, ctx...)
}

func Warn(module string, msg string, ctx ...interface{}) {
	Root().Write(slog.LevelWarn, module, msg, ctx...)
}

func Error(module string, msg string, ctx ...interface{}) {
	Root().Write(slog.LevelError, module, msg, ctx...)
}

func Crit(module string, msg string, ctx ...interface{}) {
	Root().Write(LevelCrit, module, msg, ctx...)
	os.Exit(1)
}

func New(ctx ...interface{}) Logger {
	return Root().With(ctx...)
}
