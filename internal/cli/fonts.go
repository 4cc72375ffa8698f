package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var fontsCmd = &cobra.Command{
	Use:   "fonts",
	Short: "List and fetch caption fonts",
}

var fontsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the font families a style may use",
	Args:  cobra.NoArgs,
	RunE:  runFontsList,
}

var fontsFetchCmd = &cobra.Command{
	Use:   "fetch [family]",
	Short: "Download a font family into the cache",
	Long: `Download a catalog font ahead of time so the first burn does not wait for it.

Examples:
  burnsub fonts fetch Roboto
  burnsub fonts fetch "Open Sans"`,
	Args: cobra.ExactArgs(1),
	RunE: runFontsFetch,
}

func init() {
	rootCmd.AddCommand(fontsCmd)
	fontsCmd.AddCommand(fontsListCmd)
	fontsCmd.AddCommand(fontsFetchCmd)
}

func runFontsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FAMILY\tSOURCE\tCACHED")
	for _, f := range a.catalog.Fonts() {
		cached, err := a.fonts.Cached(f.Family)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%v\n", f.Family, f.Provenance, cached)
	}
	return w.Flush()
}

func runFontsFetch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	res, err := a.fonts.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if res.Path == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is a system font, nothing to fetch\n", res.Family)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Font ready: %s\n", res.Path)
	return nil
}
