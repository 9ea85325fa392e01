// Command llm sends one prompt file to a model several times and reports
// latency and how many records each reply normalizes to. It is a smoke test
// for provider credentials and endpoint overrides.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm/anthropic"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm/dashscope"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm/gemini"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm/openai"
	"github.com/FreelineGuide/ExamBulldozer/internal/normalize"
)

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 3 {
		logger.Error("usage: llm <model_id> <prompt_file> [times]")
		os.Exit(2)
	}
	modelID := os.Args[1]
	prompt, err := os.ReadFile(os.Args[2])
	if err != nil {
		logger.Error("read prompt", "path", os.Args[2], "error", err)
		os.Exit(2)
	}
	times := 3
	if len(os.Args) >= 4 {
		if n, err := strconv.Atoi(os.Args[3]); err == nil && n > 0 {
			times = n
		}
	}

	cfg, err := common.LoadConfig(os.Getenv("EXAM_CONFIG"))
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(2)
	}

	catalog := llm.DefaultCatalog()
	for provider, url := range cfg.LLM.BaseURLs {
		catalog.OverrideBaseURL(llm.Provider(provider), url)
	}
	spec, err := catalog.Lookup(modelID)
	if err != nil {
		logger.Error("unknown model", "model", modelID, "error", err)
		os.Exit(2)
	}
	apiKey := cfg.LLM.APIKeyFor(string(spec.Provider))
	if spec.RequiresKey && apiKey == "" {
		logger.Error("no API key configured", "provider", spec.Provider)
		os.Exit(2)
	}

	opts := llm.RequestOptions{Temperature: cfg.LLM.Temperature, HTTPClient: &http.Client{Timeout: cfg.LLM.Timeout}}
	router := llm.NewRouter(catalog, logger).
		Register(llm.EndpointChatCompletions, openai.New(opts, logger)).
		Register(llm.EndpointDashScope, dashscope.New(opts, logger)).
		Register(llm.EndpointAnthropicMessages, anthropic.New(opts, logger)).
		Register(llm.EndpointGeminiGenerate, gemini.New(opts, logger))
	norm := normalize.New(nil, logger)

	for i := 1; i <= times; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.LLM.Timeout)
		start := time.Now()
		reply, err := router.Complete(ctx, spec.ID, apiKey, string(prompt))
		cancel()
		if err != nil {
			logger.Error("llm.run.error", "iter", i, "error", err)
			continue
		}
		records, errs := norm.Normalize(0, reply)
		logger.Info("llm.run.ok",
			"iter", i,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"reply_len", len(reply),
			"records", len(records),
			"faults", len(errs),
		)
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		time.Sleep(750 * time.Millisecond)
	}
	logger.Info("done", "model", spec.ID, "times", times)
}
