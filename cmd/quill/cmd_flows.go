package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/klejdi94/quill/core"
)

var flowsFlags struct {
	category string
	limit    int
}

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Inspect the flow catalog",
}

var flowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flows",
	Args:  cobra.NoArgs,
	RunE:  runFlowsList,
}

var flowsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a flow definition as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowsShow,
}

var flowsSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search flows by name, title and description",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFlowsSearch,
}

func init() {
	flowsListCmd.Flags().StringVar(&flowsFlags.category, "category", "", "Only list flows in this category")
	flowsSearchCmd.Flags().IntVar(&flowsFlags.limit, "limit", 10, "Maximum number of results")

	flowsCmd.AddCommand(flowsListCmd)
	flowsCmd.AddCommand(flowsShowCmd)
	flowsCmd.AddCommand(flowsSearchCmd)
}

func runFlowsList(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	catalog, err := e.catalog(cmd.Context())
	if err != nil {
		return err
	}
	list := catalog.List()
	if flowsFlags.category != "" {
		list = catalog.Category(flowsFlags.category)
	}
	printFlows(cmd, list)
	return nil
}

func runFlowsShow(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	catalog, err := e.catalog(cmd.Context())
	if err != nil {
		return err
	}
	f, ok := catalog.Get(args[0])
	if !ok {
		return &core.UnknownFlowError{Name: args[0]}
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(f)
}

func runFlowsSearch(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	catalog, err := e.catalog(cmd.Context())
	if err != nil {
		return err
	}
	hits, err := catalog.Search(joinArgs(args), flowsFlags.limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no matching flows")
		return nil
	}
	printFlows(cmd, hits)
	return nil
}

func printFlows(cmd *cobra.Command, list []*core.Flow) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tTITLE")
	for _, f := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, f.Category, f.Title)
	}
	_ = w.Flush()
}
