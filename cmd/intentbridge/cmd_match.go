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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/pipeline"
	"github.com/AleutianAI/IntentBridge/services/dispatch/planner"
)

func runQueryCommand(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	query := strings.Join(args, " ")
	asJSON, _ := cmd.Flags().GetBool("json")

	s, err := buildStack(ctx, mustCatalogFiles(), cacheDir, slog.Default())
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer s.Close()

	if s.offline && !asJSON {
		fmt.Println(styleDim.Render("(offline mode: hash embeddings, regex extraction)"))
	}

	res, err := s.pipe.Process(ctx, query)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if asJSON {
		printResultJSON(res)
	} else {
		printResult(res)
	}

	if res.State == pipeline.StateAwaitingInput && !asJSON {
		fmt.Println(styleDim.Render("One-shot query cannot answer follow-ups; use 'intentbridge repl'."))
		os.Exit(2)
	}
	if res.State != pipeline.StateMatched && res.State != pipeline.StateAwaitingInput {
		os.Exit(1)
	}
}

func runMatchCommand(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	query := strings.Join(args, " ")
	top, _ := cmd.Flags().GetInt("top")

	s, err := buildStack(ctx, mustCatalogFiles(), cacheDir, slog.Default())
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer s.Close()

	candidates, err := s.rank.Rank(ctx, query)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if top > 0 && top < len(candidates) {
		candidates = candidates[:top]
	}

	for _, c := range candidates {
		marker := " "
		if c.Score >= thresholdVal {
			marker = styleIntent.Render("*")
		}
		fmt.Printf("%s %2d. %-28s %s  %s\n", marker, c.Rank,
			c.Intent.Name,
			styleScore.Render(fmt.Sprintf("%.3f", c.Score)),
			styleDim.Render(c.Example))
	}
}

func runReplCommand(cmd *cobra.Command, _ []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	files := mustCatalogFiles()
	s, err := buildStack(ctx, files, cacheDir, slog.Default())
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer s.Close()

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		watcher, err := catalog.NewWatcher(files, func(cat *catalog.Catalog) {
			if err := s.reload(ctx, cat); err != nil {
				slog.Error("catalog reload failed", slog.String("error", err.Error()))
				return
			}
			fmt.Println(styleDim.Render("\n(catalogs reloaded)"))
		}, slog.Default())
		if err != nil {
			log.Fatalf("--watch: %v", err)
		}
		go func() {
			_ = watcher.Run(ctx)
		}()
	}

	mode := "online"
	if s.offline {
		mode = "offline"
	}
	fmt.Printf("intentbridge repl (%s, %d intents). Type 'exit' to quit, 'cancel' to abandon a follow-up.\n",
		mode, s.cat.Len())

	scanner := bufio.NewScanner(os.Stdin)
	sessionID := ""
	for {
		if sessionID == "" {
			fmt.Print("> ")
		} else {
			fmt.Print(styleAsk.Render("? "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit" || line == "q":
			fmt.Println("Goodbye.")
			return
		case line == "cancel":
			sessionID = ""
			fmt.Println(styleDim.Render("(follow-up abandoned)"))
			continue
		}

		var res *pipeline.Result
		var err error
		if sessionID == "" {
			res, err = s.pipe.Process(ctx, line)
		} else {
			res, err = s.pipe.Resume(ctx, sessionID, line)
		}
		if err != nil {
			fmt.Println(styleErr.Render(fmt.Sprintf("Error: %v", err)))
			sessionID = ""
			continue
		}

		printResult(res)
		if res.State == pipeline.StateAwaitingInput {
			sessionID = res.SessionID
		} else {
			sessionID = ""
		}
	}
}

// printResultJSON renders one pipeline turn as machine-readable JSON.
func printResultJSON(res *pipeline.Result) {
	out := map[string]any{"state": string(res.State)}
	if res.Intent != nil {
		out["intent"] = res.Intent.Name
	}
	if res.Decision.Best != nil {
		out["score"] = res.Decision.Best.Score
	}
	switch res.State {
	case pipeline.StateMatched:
		steps := make([]map[string]any, 0, len(res.Plan.Steps))
		for _, step := range res.Plan.Steps {
			params := make(map[string]string, len(step.Params))
			for name, v := range step.Params {
				params[name] = v.String()
			}
			entry := map[string]any{"tool": step.Tool, "params": params}
			if step.PostProcess != "" {
				entry["post_process"] = step.PostProcess
				entry["provides"] = step.Produces
			}
			steps = append(steps, entry)
		}
		out["tool_plan"] = steps
		out["reordered"] = res.Plan.Reordered
	case pipeline.StateAwaitingInput:
		out["session_id"] = res.SessionID
		out["question"] = res.Question
		gaps := make([]string, 0, len(res.Resolution.Gaps))
		for _, g := range res.Resolution.Gaps {
			gaps = append(gaps, g.Name)
		}
		out["missing"] = gaps
	case pipeline.StateDisambiguate, pipeline.StateNoMatch:
		names := make([]string, 0)
		for _, c := range append(res.Decision.Contenders, res.Decision.Suggestions...) {
			names = append(names, c.Intent.Name)
		}
		out["candidates"] = names
	case pipeline.StatePlanFailed:
		out["error"] = res.PlanErr.Error()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// printResult renders one pipeline turn for the terminal.
func printResult(res *pipeline.Result) {
	switch res.State {
	case pipeline.StateMatched:
		header := styleIntent.Render(res.Intent.Name)
		if res.Decision.Best != nil {
			header += " " + styleScore.Render(fmt.Sprintf("(%.3f)", res.Decision.Best.Score))
		}
		fmt.Println(header)
		printPlan(res.Plan)

	case pipeline.StateAwaitingInput:
		fmt.Println(styleAsk.Render(res.Question))

	case pipeline.StateDisambiguate:
		fmt.Println("That could mean a few things:")
		for i, c := range res.Decision.Contenders {
			fmt.Printf("  %d. %s %s\n", i+1,
				styleIntent.Render(c.Intent.Name),
				styleScore.Render(fmt.Sprintf("(%.3f)", c.Score)))
		}

	case pipeline.StateNoMatch:
		fmt.Println("Sorry, I don't know how to do that.")
		for _, c := range res.Decision.Suggestions {
			fmt.Printf("  - %s %s\n", c.Intent.Name,
				styleScore.Render(fmt.Sprintf("(%.3f)", c.Score)))
		}
		if res.Hint != "" {
			fmt.Println(styleDim.Render(res.Hint))
		}

	case pipeline.StatePlanFailed:
		fmt.Println(styleErr.Render(fmt.Sprintf("Matched %s, but its steps cannot be ordered: %v",
			res.Intent.Name, res.PlanErr)))
	}
}

func printPlan(plan *planner.Plan) {
	for i, step := range plan.Steps {
		fmt.Printf("  %d. %s(%s)\n", i+1, styleStep.Render(step.Tool), formatParams(step.Params))
		if step.PostProcess != "" {
			fmt.Printf("     %s -> %s\n",
				styleDim.Render(step.PostProcess),
				styleMarker.Render(strings.Join(step.Produces, ", ")))
		}
	}
	if plan.Reordered {
		fmt.Println(styleDim.Render("  (steps reordered to satisfy dependencies)"))
	}
}

// formatParams renders params in stable name order.
func formatParams(params map[string]catalog.ParamValue) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		v := params[name]
		rendered := v.String()
		if v.Kind == catalog.ParamProduced {
			rendered = styleMarker.Render(rendered)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, rendered))
	}
	return strings.Join(parts, ", ")
}
