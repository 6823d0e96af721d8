package main

import (
	"github.com/spf13/cobra"

	"github.com/Skryldev/rasterpipe/config"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Print the effective engine settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s := config.NewEngineConfig(cfg.Engine).Snapshot()
		cmd.Printf("cache:        %t (%d entries)\n", s.Cache, s.CacheEntries)
		cmd.Printf("simd:         %t\n", s.SIMD)
		cmd.Printf("concurrency:  %d\n", s.EffectiveConcurrency())
		cmd.Printf("backend:      %s\n", cfg.Backend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(engineCmd)
}
