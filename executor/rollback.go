package executor

import (
	"fmt"
	"path/filepath"

	"github.com/colorfulnotion/cloudop/log"
)

func StatePath(dbPath string) string { return filepath.Join(dbPath, "statedb") }

func ChainPath(dbPath string) string { return filepath.Join(dbPath, "nosql") }

// RollbackState points the state db's current hash at block h.
func RollbackState(statePath string, h uint64) error {
	db, err := Open(statePath)
	if err != nil {
		return err
	}
	defer db.Close()

	hash, err := db.BlockHash(h)
	if err != nil {
		return fmt.Errorf("state db %s: %w", statePath, err)
	}
	if err := db.SetCurrentHash(hash); err != nil {
		return fmt.Errorf("state db %s: %w", statePath, err)
	}
	log.Info(log.ExecutorMonitoring, "state db current hash written", "height", h, "hash", hash)
	return nil
}

// RollbackChain points the chain db's current hash at the hash of header h.
func RollbackChain(chainPath string, h uint64) error {
	db, err := Open(chainPath)
	if err != nil {
		return err
	}
	defer db.Close()

	header, err := db.HeaderByNumber(h)
	if err != nil {
		return fmt.Errorf("chain db %s: %w", chainPath, err)
	}
	hash := header.Hash()
	if err := db.SetCurrentHash(hash); err != nil {
		return fmt.Errorf("chain db %s: %w", chainPath, err)
	}
	log.Info(log.ExecutorMonitoring, "chain db current hash written", "height", h, "hash", hash)
	return nil
}

// Rollback rewinds both executor databases under dbPath to block h.
func Rollback(dbPath string, h uint64) error {
	if err := RollbackState(StatePath(dbPath), h); err != nil {
		return err
	}
	return RollbackChain(ChainPath(dbPath), h)
}
