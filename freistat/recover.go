package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/export"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <run-id>",
	Short: "Write the CSV files of an archived run again",
	Long: `Reads a run back from the SQLite archive and writes its data and
parameter files into the export directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

func runRecover(cmd *cobra.Command, args []string) error {
	if cfg.Export.SQLite == "" {
		return errors.New("no archive configured (export.sqlite)")
	}

	a, err := export.OpenArchive(cfg.Export.SQLite)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	paths, err := export.CSV(cfg.Export.Directory, st)
	if err != nil {
		return err
	}
	logger.Info("recovered run",
		zap.Stringer("run", st.RunID()),
		zap.String("dir", export.RunDir(cfg.Export.Directory, st)),
		zap.Int("files", len(paths)),
	)
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
