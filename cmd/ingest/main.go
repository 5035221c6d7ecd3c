package main

import (
	"context"
	"log"
	"os"

	"github.com/altitut/fundingmatch/internal/config"
	"github.com/altitut/fundingmatch/internal/embedclient"
	"github.com/altitut/fundingmatch/internal/ingest"
	"github.com/altitut/fundingmatch/internal/llmclient"
	"github.com/altitut/fundingmatch/internal/vectorindex"
	"github.com/jedib0t/go-pretty/v6/table"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	ctx := context.Background()

	embedder := embedclient.New(cfg.EmbedBaseURL, cfg.EmbedModel, cfg.EmbedRateLimitRPM)
	idx, err := vectorindex.Open(cfg.VectorIndexRoot, embedder.Embed)
	if err != nil {
		log.Fatalf("opening vector index: %v", err)
	}

	registry, err := ingest.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("loading processed-ids registry: %v", err)
	}
	tracker := ingest.NewTracker(cfg.UnprocessedPath)

	deps := &ingest.Deps{
		LLM:                  llmclient.New(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMRateLimitRPM),
		Index:                idx,
		Registry:             registry,
		Tracker:              tracker,
		FetchTimeout:         cfg.FetchTimeout,
		FetchMaxChars:        cfg.FetchMaxChars,
		EnableDeadlineRescue: cfg.EnableLLMDeadlineRescue,
		Concurrency:          cfg.IngestWorkerConcurrency,
	}

	summary, err := ingest.IngestDir(ctx, cfg.IntakeDir, deps, func(e ingest.Event) {
		if e.Total > 0 {
			log.Printf("[%s] %s (%d/%d)", e.Stage, e.Message, e.Current, e.Total)
		} else {
			log.Printf("[%s] %s", e.Stage, e.Message)
		}
	})
	if err != nil {
		log.Fatalf("ingesting %s: %v", cfg.IntakeDir, err)
	}

	if err := registry.Flush(); err != nil {
		log.Fatalf("flushing registry: %v", err)
	}
	if err := tracker.Flush(); err != nil {
		log.Fatalf("flushing unprocessed tracker: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Session", "Files OK", "Files Errored", "Rows New", "Rows Dup", "Rows Expired", "Rows No-Deadline", "Rows Errored"})
	t.AppendRow(table.Row{
		summary.SessionID, summary.FilesProcessed, summary.FilesErrored,
		summary.RowsNew, summary.RowsDuplicate, summary.RowsExpired, summary.RowsNoDeadline, summary.RowsErrored,
	})
	t.Render()

	for _, msg := range summary.FileErrors {
		log.Printf("file error: %s", msg)
	}
}
