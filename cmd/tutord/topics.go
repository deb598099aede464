package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tutord/internal/config"
	"tutord/internal/curriculum"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List and validate the topics in the curriculum directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		library, err := curriculum.NewLibrary(cfg.Curriculum.Dir, logger.Named("curriculum"))
		if err != nil {
			return fmt.Errorf("load curriculum: %w", err)
		}
		for _, t := range library.List() {
			fmt.Printf("%-24s %s (%s, grade %d, %d steps)\n",
				t.ID, t.Name, t.Subject, t.GradeLevel, t.Plan.TotalSteps())
		}
		return nil
	},
}
