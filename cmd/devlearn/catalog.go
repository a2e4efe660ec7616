package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/cobra"

	playground "github.com/devlearn/playground"
	"github.com/devlearn/playground/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect templates, scenarios and challenges",
	}
	cmd.AddCommand(newCatalogListCmd())
	cmd.AddCommand(newCatalogShowCmd())
	return cmd
}

func newCatalogListCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lib, err := loadLibrary(cfg)
			if err != nil {
				return err
			}
			return listCatalog(cmd.OutOrStdout(), lib.Current(), kind)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only list template, scenario or challenge entries")
	return cmd
}

func listCatalog(w io.Writer, set *catalog.Set, kind string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tTITLE")
	for _, c := range []*catalog.Catalog{set.Templates, set.Scenarios, set.Challenges} {
		if kind != "" && string(c.Kind()) != kind {
			continue
		}
		for _, b := range c.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Kind, b.Name, b.Title)
		}
	}
	return tw.Flush()
}

func newCatalogShowCmd() *cobra.Command {
	var (
		tab   string
		style string
		plain bool
	)
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print one buffer of a catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lib, err := loadLibrary(cfg)
			if err != nil {
				return err
			}
			lang, err := playground.ParseLanguage(tab)
			if err != nil {
				return err
			}
			b, ok := lib.Current().Find(args[0])
			if !ok {
				return &playground.NotFoundError{Kind: "template", Name: args[0]}
			}
			return showBuffer(cmd.OutOrStdout(), b, lang, style, plain)
		},
	}
	cmd.Flags().StringVar(&tab, "tab", string(playground.HTML), "buffer to print: html, css, javascript or python")
	cmd.Flags().StringVar(&style, "style", "monokai", "chroma style")
	cmd.Flags().BoolVar(&plain, "plain", false, "disable syntax highlighting")
	return cmd
}

func showBuffer(w io.Writer, b playground.Bundle, lang playground.Language, style string, plain bool) error {
	fmt.Fprintf(w, "# %s (%s)\n", b.Title, b.Kind)
	src := b.Buffers.Get(lang)
	if src == "" {
		_, err := fmt.Fprintf(w, "(no %s)\n", lang)
		return err
	}
	if plain {
		_, err := io.WriteString(w, src)
		return err
	}
	return quick.Highlight(w, src, playground.ModeFor(lang).Lexer, "terminal256", style)
}
