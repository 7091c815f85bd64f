package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/assetpack/assetpack/internal/naming"
)

type kindFlag int

const (
	kindJS kindFlag = iota
	kindCSS
)

var kinds = map[kindFlag][]string{
	kindJS:  {string(naming.KindJS)},
	kindCSS: {string(naming.KindCSS)},
}

var (
	nameKind     = kindJS
	nameVersion  string
	nameMinify   bool
	nameDownload bool
)

func init() {
	nameCmd := &cobra.Command{
		Use:   "name <url>...",
		Short: "Print the artifact name for an ordered list of member URLs",
		Long: `The name command prints the name the artifact merging the given URLs would
get. URLs are used exactly as registered, including any version parameter.

Example:
  assetpack name --version 1.4 /js/a.js?nlsver=1.4 /js/b.js?nlsver=1.4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := naming.NewDescriptor()
			for _, u := range args {
				d.Add(u)
			}
			kind := naming.Kind(kinds[nameKind][0])
			_, err := fmt.Fprintln(cmd.OutOrStdout(), d.Name(nameVersion, kind, naming.Flags{Minify: nameMinify, DownloadResources: nameDownload}))
			return err
		},
	}
	nameCmd.Flags().Var(enumflag.New(&nameKind, "kind", kinds, enumflag.EnumCaseInsensitive), "kind", "Artifact kind: js or css")
	nameCmd.Flags().StringVar(&nameVersion, "version", "", "Application version")
	nameCmd.Flags().BoolVar(&nameMinify, "minify", false, "Name a minified artifact")
	nameCmd.Flags().BoolVar(&nameDownload, "download", false, "Name a stylesheet artifact with downloaded resources")
	rootCmd.AddCommand(nameCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "fingerprint <absolute-url>...",
		Short: "Print the fingerprints clients report for loaded scripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, u := range args {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", naming.Fingerprint(u), u); err != nil {
					return err
				}
			}
			return nil
		},
	})
}
