package main

import (
	"fmt"

	"photoforge/internal/catalog"
	"photoforge/internal/config"

	"github.com/spf13/cobra"
)

var catalogConfigPath string

// catalogCmd manages the completed-asset catalog.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and maintain the completed-asset catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list [session-id]",
	Short: "List catalogued assets, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  catalogList,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Show one catalogued asset",
	Args:  cobra.ExactArgs(1),
	RunE:  catalogShow,
}

var catalogPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop records whose asset file no longer exists",
	RunE:  catalogPrune,
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogConfigPath, "config", "photoforge.yaml", "Config file path")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogPruneCmd)
}

func openCatalog() (*catalog.Catalog, error) {
	cfg, err := config.Load(catalogConfigPath)
	if err != nil {
		return nil, err
	}
	if !cfg.Catalog.Enabled {
		return nil, fmt.Errorf("catalog is disabled in config")
	}
	return catalog.New(cfg.Catalog.DatabasePath)
}

func catalogList(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	var records []catalog.Record
	if len(args) == 1 {
		records, err = cat.ListForSession(args[0])
	} else {
		records, err = cat.List()
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No catalogued assets")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  %s  %-7s  %8d bytes  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.JobID, rec.DetailLevel, rec.SizeBytes, rec.FileReference)
	}
	fmt.Printf("%d asset(s)\n", len(records))
	return nil
}

func catalogShow(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	rec, err := cat.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("job:     %s\n", rec.JobID)
	fmt.Printf("session: %s\n", rec.SessionID)
	fmt.Printf("file:    %s\n", rec.FileReference)
	fmt.Printf("format:  %s\n", rec.Format)
	fmt.Printf("size:    %d bytes\n", rec.SizeBytes)
	fmt.Printf("detail:  %s\n", rec.DetailLevel)
	fmt.Printf("created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func catalogPrune(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	pruned, err := cat.Prune()
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d stale record(s)\n", pruned)
	return nil
}
