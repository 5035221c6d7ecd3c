package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/altitut/fundingmatch/internal/config"
	"github.com/altitut/fundingmatch/internal/embedclient"
	"github.com/altitut/fundingmatch/internal/matchstore"
	"github.com/altitut/fundingmatch/internal/rank"
	"github.com/altitut/fundingmatch/internal/vectorindex"
	"github.com/jedib0t/go-pretty/v6/table"
)

func main() {
	userID := flag.String("user", "", "researcher id to rank opportunities for")
	k := flag.Int("k", 0, "number of opportunities to rank (0 uses the configured default)")
	flag.Parse()

	if *userID == "" {
		log.Fatal("usage: rank -user=<researcher id>")
	}

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

	pool, err := matchstore.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connecting to match store: %v", err)
	}
	defer pool.Close()
	if err := matchstore.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("applying match store migrations: %v", err)
	}
	store := matchstore.NewStore(pool)

	r := &rank.Ranker{
		Index:              idx,
		Store:              store,
		ConfidenceFloor:    cfg.ConfidenceFloor,
		ConfidenceCeiling:  cfg.ConfidenceCeiling,
		ConfidenceExponent: cfg.ConfidenceExponent,
	}

	topK := *k
	if topK <= 0 {
		topK = cfg.TopK
	}

	matches, err := r.Rank(ctx, *userID, topK, nil)
	if err != nil {
		log.Fatalf("ranking opportunities for %s: %v", *userID, err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Confidence", "Similarity", "Title", "Agency", "Deadline"})
	for _, m := range matches {
		t.AppendRow(table.Row{m.ConfidenceScore, m.SimilarityScore, m.OpportunityTitle, m.Agency, m.Deadline})
	}
	t.Render()
}
