// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
)

func runIndexCommand(_ *cobra.Command, _ []string) {
	ctx := context.Background()
	start := time.Now()

	s, err := buildStack(ctx, mustCatalogFiles(), cacheDir, slog.Default())
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer s.Close()

	examples := 0
	for _, def := range s.cat.Intents() {
		examples += len(def.Examples)
	}

	fmt.Printf("Indexed %d intents (%d examples) with %s in %s\n",
		s.cat.Len(), examples, s.embedder.Model(), time.Since(start).Round(time.Millisecond))
	if s.db == nil {
		fmt.Println(styleDim.Render("(no cache directory; index was not persisted)"))
	} else {
		fmt.Printf("Index cached under %s\n", cacheDir)
	}
}

func runStatsCommand(_ *cobra.Command, _ []string) {
	cat, err := catalog.LoadFiles(mustCatalogFiles())
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("%d intents across %d domains\n\n", cat.Len(), len(cat.Domains()))
	for _, domain := range cat.Domains() {
		fmt.Println(styleIntent.Render(domain))
		for _, def := range cat.Intents() {
			if def.Domain != domain {
				continue
			}
			required := len(def.RequiredVariables())
			fmt.Printf("  %-28s %2d examples  %d vars (%d required)  %d steps\n",
				def.Name, len(def.Examples), len(def.Variables), required, len(def.Steps))
		}
		fmt.Println()
	}
}
