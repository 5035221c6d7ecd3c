package main

import (
	"context"
	"flag"
	"log"

	"github.com/altitut/fundingmatch/internal/config"
	"github.com/altitut/fundingmatch/internal/embedclient"
	"github.com/altitut/fundingmatch/internal/profile"
	"github.com/altitut/fundingmatch/internal/vectorindex"
)

func main() {
	jsonPath := flag.String("profile", "", "path to a researcher profile JSON file")
	flag.Parse()
	pdfPaths := flag.Args()

	if *jsonPath == "" {
		log.Fatal("usage: profile -profile=<path to profile.json> [pdf...]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	embedder := embedclient.New(cfg.EmbedBaseURL, cfg.EmbedModel, cfg.EmbedRateLimitRPM)
	idx, err := vectorindex.Open(cfg.VectorIndexRoot, embedder.Embed)
	if err != nil {
		log.Fatalf("opening vector index: %v", err)
	}

	b := &profile.Builder{
		Index:         idx,
		FetchTimeout:  cfg.FetchTimeout,
		FetchMaxChars: cfg.FetchMaxChars,
	}

	prof, err := b.Build(context.Background(), *jsonPath, pdfPaths)
	if err != nil {
		log.Fatalf("building profile: %v", err)
	}

	log.Printf("researcher %q upserted as %s (%d chars of combined text)", prof.Name, prof.ID, len(prof.CombinedText))
}
