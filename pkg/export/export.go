package export

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/config"
	"github.com/itohio/freistat/pkg/store"
)

// Run writes st to every destination enabled in cfg and returns the paths
// written. The store must no longer be running.
func Run(ctx context.Context, cfg config.ExportConfig, st *store.Store, log *zap.Logger) ([]string, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var paths []string
	if cfg.CSV {
		written, err := CSV(cfg.Directory, st)
		if err != nil {
			return written, err
		}
		log.Info("exported csv", zap.String("dir", RunDir(cfg.Directory, st)), zap.Int("files", len(written)))
		paths = append(paths, written...)
	}

	if cfg.SQLite != "" {
		a, err := OpenArchive(cfg.SQLite)
		if err != nil {
			return paths, err
		}
		defer a.Close()
		if err := a.Save(ctx, st); err != nil {
			return paths, fmt.Errorf("failed to archive run %s: %w", st.RunID(), err)
		}
		log.Info("archived run", zap.String("db", a.Path()), zap.Stringer("run", st.RunID()))
		paths = append(paths, a.Path())
	}
	return paths, nil
}
