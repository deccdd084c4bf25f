// Command enhance runs the query enhancement pipeline once and prints the
// enhanced query with its report as indented JSON.
//
//	enhance [-lexicon path] [-no-synonyms] [-no-special] [-no-fuzzy] [-no-categories] query...
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/attribution"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/logger"
)

type output struct {
	Query         string          `json:"query"`
	EnhancedQuery string          `json:"enhanced_query"`
	Report        enhancer.Report `json:"report"`
	Notes         []string        `json:"notes"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "enhance: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("enhance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	lexiconPath := fs.String("lexicon", "", "path to a YAML lexicon (default: built-in)")
	noSynonyms := fs.Bool("no-synonyms", false, "disable synonym expansion")
	noSpecial := fs.Bool("no-special", false, "disable special-term protection")
	noFuzzy := fs.Bool("no-fuzzy", false, "disable fuzzy correction")
	noCategories := fs.Bool("no-categories", false, "disable category prioritization")
	threshold := fs.Float64("threshold", 0, "fuzzy similarity threshold (default 0.75)")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	slog.SetDefault(logger.New(stderr, *logLevel, "text"))

	lex, err := lexicon.LoadOrDefault(*lexiconPath)
	if err != nil {
		return err
	}
	var opts []enhancer.Option
	if *threshold > 0 {
		opts = append(opts, enhancer.WithThreshold(*threshold))
	}
	e, err := enhancer.New(lex, opts...)
	if err != nil {
		return err
	}

	cfg := enhancer.Config{
		Synonyms:     !*noSynonyms,
		SpecialTerms: !*noSpecial,
		Fuzzy:        !*noFuzzy,
		Categories:   !*noCategories,
	}
	query := strings.Join(fs.Args(), " ")
	enhanced, report := e.Enhance(query, cfg)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(output{
		Query:         query,
		EnhancedQuery: enhanced,
		Report:        report,
		Notes:         attribution.Explain(report),
	})
}
