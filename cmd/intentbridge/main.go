// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// intentbridge is the command-line front end for the intent matching
// pipeline: it loads tool catalogs, builds the example index, and turns
// natural-language queries into ordered tool plans.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
)

// Flag values shared across subcommands.
var (
	catalogFlags []string
	cacheDir     string
	thresholdVal float64
	epsilonVal   float64
	suggestCount int
	verboseFlag  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "intentbridge",
		Short: "Match natural language to tool plans",
		Long: `intentbridge matches free-form requests against a YAML catalog of
intents and produces dependency-ordered tool plans. With OPENAI_API_KEY
set, embeddings and variable extraction use the OpenAI API; without it,
a deterministic offline stack is used instead.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verboseFlag {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringArrayVar(&catalogFlags, "catalog", nil,
		"catalog file as domain=path (repeatable); bare paths use the file name as domain")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", defaultCacheDir(),
		"directory for the persistent embedding index")
	rootCmd.PersistentFlags().Float64Var(&thresholdVal, "threshold", 0.8,
		"minimum similarity score for an intent match")
	rootCmd.PersistentFlags().Float64Var(&epsilonVal, "epsilon", 0,
		"score band within which runners-up force disambiguation (0 disables)")
	rootCmd.PersistentFlags().IntVar(&suggestCount, "suggestions", 3,
		"near-miss suggestions to show when nothing matches")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"enable debug logging")

	queryCmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Run one query through the full pipeline and print its tool plan",
		Args:  cobra.MinimumNArgs(1),
		Run:   runQueryCommand,
	}
	queryCmd.Flags().Bool("json", false, "print the result as JSON")

	matchCmd := &cobra.Command{
		Use:   "match [text]",
		Short: "Show the top candidate intents for a query, without planning",
		Args:  cobra.MinimumNArgs(1),
		Run:   runMatchCommand,
	}
	matchCmd.Flags().Int("top", 5, "number of candidates to show")

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive matching loop with follow-up questions",
		Run:   runReplCommand,
	}
	replCmd.Flags().Bool("watch", false, "hot-reload catalogs when their files change")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build and persist the embedding index for the catalogs",
		Run:   runIndexCommand,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the loaded catalogs",
		Run:   runStatsCommand,
	}

	rootCmd.AddCommand(queryCmd, matchCmd, replCmd, indexCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// defaultCacheDir keeps the index cache under the user's cache root, the
// same place other local tools put theirs.
func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".intentbridge"
	}
	return filepath.Join(base, "intentbridge")
}

// parseCatalogFlags turns --catalog values into domain files. "jira=a.yaml"
// names the domain explicitly; a bare path uses its base name.
func parseCatalogFlags(flags []string) ([]catalog.DomainFile, error) {
	if len(flags) == 0 {
		return nil, fmt.Errorf("no catalogs given; pass at least one --catalog domain=path")
	}
	files := make([]catalog.DomainFile, 0, len(flags))
	for _, f := range flags {
		domain, path, ok := strings.Cut(f, "=")
		if !ok {
			path = f
			domain = strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		}
		if domain == "" || path == "" {
			return nil, fmt.Errorf("bad --catalog value %q", f)
		}
		files = append(files, catalog.DomainFile{Domain: domain, Path: path})
	}
	return files, nil
}

// mustCatalogFiles is parseCatalogFlags for commands where failure is fatal.
func mustCatalogFiles() []catalog.DomainFile {
	files, err := parseCatalogFlags(catalogFlags)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return files
}
