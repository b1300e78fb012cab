package rollback

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/cloudop/config"
	"github.com/colorfulnotion/cloudop/ledger"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
	"github.com/colorfulnotion/cloudop/utxo"
	"github.com/spf13/afero"
)

// Coordinator runs rollbacks, cloud rollbacks, backups and exports against one node's
// data directory. It assumes exclusive offline access.
type Coordinator struct {
	cfg     *config.Config
	backend storage.Backend
	ledger  *ledger.Ledger
	schema  utxo.Schema
	fs      afero.Fs
}

// Open selects the chain store from cfg and builds a coordinator over the OS filesystem.
func Open(cfg *config.Config) (*Coordinator, error) {
	backend, err := storage.OpenBackend(cfg)
	if err != nil {
		return nil, err
	}
	c, err := New(cfg, backend, afero.NewOsFs())
	if err != nil {
		backend.Close()
		return nil, err
	}
	return c, nil
}

func New(cfg *config.Config, backend storage.Backend, fs afero.Fs) (*Coordinator, error) {
	schema, err := utxo.SchemaByName(cfg.Cloudop.Schema, int(cfg.Controller.HashLen))
	if err != nil {
		return nil, err
	}
	log.Debug(log.RollbackMonitoring, "coordinator ready", "backend", backend.Kind(), "schema", schema.Name)
	return &Coordinator{
		cfg:     cfg,
		backend: backend,
		ledger:  ledger.New(backend),
		schema:  schema,
		fs:      fs,
	}, nil
}

func (c *Coordinator) Backend() storage.Backend { return c.backend }

func (c *Coordinator) Ledger() *ledger.Ledger { return c.ledger }

func (c *Coordinator) Schema() utxo.Schema { return c.schema }

func (c *Coordinator) Close() error {
	return c.backend.Close()
}

func (c *Coordinator) resolver(backend storage.Backend) *utxo.Resolver {
	return utxo.NewResolver(backend, c.schema, c.cfg.Cloudop.ResolveConcurrency)
}

func outOfRange(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), operrors.ErrHeightOutOfRange)
}

// rewindLedger runs the ledger and lock steps of a rollback against one chain store:
// height (and hash), then the watermark, then every lock slot.
func (c *Coordinator) rewindLedger(ctx context.Context, l *ledger.Ledger, rec *ledger.Record, target uint64) ([]utxo.Outcome, error) {
	var hash []byte
	if l.Backend().Kind().HashChained() {
		h, err := l.DeriveHashFromSuccessor(ctx, target)
		if err != nil {
			return nil, err
		}
		hash = h
	}
	if err := l.SetHeight(ctx, rec, target, hash); err != nil {
		return nil, err
	}
	if err := l.Clamp(ctx, rec, target); err != nil {
		return nil, err
	}
	return c.resolver(l.Backend()).ResolveAll(ctx, target)
}
