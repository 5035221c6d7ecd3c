package main

import (
	"context"
	"log"
	"time"

	"github.com/altitut/fundingmatch/internal/config"
	"github.com/altitut/fundingmatch/internal/embedclient"
	"github.com/altitut/fundingmatch/internal/ingest"
	"github.com/altitut/fundingmatch/internal/sync"
	"github.com/altitut/fundingmatch/internal/vectorindex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	embedder := embedclient.New(cfg.EmbedBaseURL, cfg.EmbedModel, cfg.EmbedRateLimitRPM)
	idx, err := vectorindex.Open(cfg.VectorIndexRoot, embedder.Embed)
	if err != nil {
		log.Fatalf("opening vector index: %v", err)
	}

	registry, err := ingest.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("loading processed-ids registry: %v", err)
	}

	s := &sync.Syncer{Registry: registry, Index: idx, Interval: cfg.EvictionInterval}
	report, err := s.Run(context.Background(), time.Now().UTC())
	if err != nil {
		log.Fatalf("running eviction/sync pass: %v", err)
	}

	if !report.Ran {
		log.Printf("sync skipped: last cleanup was within the last %s", cfg.EvictionInterval)
		return
	}

	log.Printf("sync: expired %d, dropped %d stale registry entries, found %d orphaned index ids",
		len(report.Expired), len(report.ReconciledRegistry), len(report.OrphanedInIndex))
}
