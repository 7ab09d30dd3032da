package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klejdi94/quill/flows"
	"github.com/klejdi94/quill/internal/app"
	"github.com/klejdi94/quill/registry"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Copy flows between stores",
}

var catalogPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Write the built-in flows to every configured store",
	Args:  cobra.NoArgs,
	RunE:  runCatalogPush,
}

var catalogExportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write the loaded catalog to a directory of YAML files",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogExport,
}

func init() {
	catalogCmd.AddCommand(catalogPushCmd)
	catalogCmd.AddCommand(catalogExportCmd)
}

func runCatalogPush(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	stores, err := app.Stores(cmd.Context(), e.cfg.Catalog, &e.closers)
	if err != nil {
		return err
	}
	if len(stores) == 0 {
		return fmt.Errorf("no catalog stores configured")
	}
	builtin := flows.Catalog()
	for _, s := range stores {
		if err := registry.Publish(cmd.Context(), s, builtin); err != nil {
			return err
		}
		e.logger.Info("pushed flows", zap.String("store", fmt.Sprintf("%T", s)), zap.Int("flows", builtin.Len()))
	}
	return nil
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	catalog, err := e.catalog(cmd.Context())
	if err != nil {
		return err
	}
	dst, err := registry.NewFileStore(args[0])
	if err != nil {
		return err
	}
	if err := registry.Publish(cmd.Context(), dst, catalog); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d flows to %s\n", catalog.Len(), args[0])
	return nil
}
