package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/assetpack/assetpack/internal/manifest"
	"github.com/assetpack/assetpack/internal/merge"
	"github.com/assetpack/assetpack/internal/registry"
	"github.com/assetpack/assetpack/pkg/clientscript"
)

var (
	mergeJS       []string
	mergeCSS      []string
	mergePackages []string
	mergeXHR      bool
	mergeManifest string
	mergeHTML     bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Run one render pass and print the resulting registrations",
		Long: `The merge command registers the given packages, scripts and stylesheets on
a page, renders it and prints the final registrations.

Scripts are given as [position:]url, stylesheets as [media:]url.

Example:
  assetpack merge -c config.yaml --js head:/js/a.js --js /js/b.js --css screen:/css/site.css
  assetpack merge -c config.yaml --package app --xhr --manifest '[120934,88213]'`,
		Args: cobra.NoArgs,
		RunE: runMerge,
	}
	cmd.Flags().StringArrayVar(&mergeJS, "js", nil, "Script to register as [position:]url")
	cmd.Flags().StringArrayVar(&mergeCSS, "css", nil, "Stylesheet to register as [media:]url")
	cmd.Flags().StringSliceVar(&mergePackages, "package", nil, "Package to register")
	cmd.Flags().BoolVar(&mergeXHR, "xhr", false, "Render as an AJAX request")
	cmd.Flags().StringVar(&mergeManifest, "manifest", "", "Fingerprints the client already loaded, as a JSON array")
	cmd.Flags().BoolVar(&mergeHTML, "html", false, "Print the rendered HTML fragments")
	rootCmd.AddCommand(cmd)
}

func runMerge(cmd *cobra.Command, _ []string) error {
	m, _, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	spec := clientscript.PageSpec{Packages: mergePackages}
	for _, s := range mergeJS {
		position, url := splitGroup(s, func(p string) bool { return slices.Contains(registry.Positions, p) })
		spec.JS = append(spec.JS, clientscript.ScriptFile{URL: url, Position: position})
	}
	for _, s := range mergeCSS {
		media, url := splitGroup(s, func(string) bool { return true })
		spec.CSS = append(spec.CSS, clientscript.CSSFile{URL: url, Media: media})
	}

	page := m.Page(merge.Request{XHR: mergeXHR, Manifest: manifest.Parse(mergeManifest)})
	if err := page.Apply(spec); err != nil {
		return err
	}

	f, err := page.Render(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if mergeHTML {
		fmt.Fprint(out, f.Head, f.BodyBegin, f.BodyEnd)
		return nil
	}

	type row struct {
		Kind  string `json:"kind"`
		Group string `json:"group"`
		URL   string `json:"url"`
	}

	var rows []row
	for _, p := range append(page.Separated(), page) {
		for _, r := range p.Styles() {
			rows = append(rows, row{Kind: "css", Group: r.Group, URL: r.URL})
		}
		for _, r := range p.Scripts() {
			rows = append(rows, row{Kind: "js", Group: r.Group, URL: r.URL})
		}
	}

	if jsonOut {
		return printJSON(out, rows)
	}

	table := tablewriter.NewWriter(out)
	table.Header("Kind", "Group", "URL")
	for _, r := range rows {
		if err := table.Append([]string{r.Kind, r.Group, r.URL}); err != nil {
			return err
		}
	}
	return table.Render()
}

// splitGroup splits "group:url". Strings without a valid group, including
// absolute URLs such as "http://...", are all URL.
func splitGroup(s string, valid func(string) bool) (string, string) {
	group, url, ok := strings.Cut(s, ":")
	if !ok || strings.HasPrefix(url, "//") || !valid(group) {
		return "", s
	}
	return group, url
}
