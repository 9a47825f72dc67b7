package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trajexplore/trajexplore/storage"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "print a trajectory's overview tables from the archive",
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	archivePath := viper.GetString("archive")
	name := viper.GetString("trajectory-name")

	svc, err := storage.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer svc.Finalize()

	ov, err := svc.Overview(name)
	if err != nil {
		return fmt.Errorf("read overview: %w", err)
	}

	fmt.Println(ov.Summary())
	for _, row := range ov.Runs {
		fmt.Printf("  run %08d  %-10s worker=%s  %v\n", row.Index, row.Status, row.WorkerID, row.WallTime)
	}
	for _, row := range ov.Parameters {
		fmt.Printf("  parameter %s (%s) = %s\n", row.Name, row.Kind, row.ValueRepr)
	}
	for _, row := range ov.ExploredParameters {
		fmt.Printf("  explored  %s (%s) = %s\n", row.Name, row.Kind, row.ValueRepr)
	}
	for _, row := range ov.ResultsSummary {
		fmt.Printf("  result    %s (first at run %08d)\n", row.Name, row.FirstRunIndex)
	}
	return nil
}
