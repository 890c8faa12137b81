package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/itohio/freistat/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := configFile
		if len(args) > 0 {
			name = args[0]
		}
		if err := config.Default().Save(name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", name)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate every configured experiment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exps, err := experiments()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		failed := 0
		for i, exp := range exps {
			if _, err := prepare(exp); err != nil {
				fmt.Fprintf(w, "%d %s: %v\n", i, exp.Kind(), err)
				failed++
				continue
			}
			fmt.Fprintf(w, "%d %s: ok\n", i, exp.Kind())
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d experiments invalid", failed, len(exps))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
}
