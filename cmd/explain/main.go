package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/altitut/fundingmatch/internal/config"
	"github.com/altitut/fundingmatch/internal/embedclient"
	"github.com/altitut/fundingmatch/internal/explain"
	"github.com/altitut/fundingmatch/internal/llmclient"
	"github.com/altitut/fundingmatch/internal/matchstore"
	"github.com/altitut/fundingmatch/internal/models"
	"github.com/altitut/fundingmatch/internal/vectorindex"
)

func main() {
	userID := flag.String("user", "", "researcher id")
	opportunityID := flag.String("opportunity", "", "opportunity id to explain, from a prior rank run")
	flag.Parse()

	if *userID == "" || *opportunityID == "" {
		log.Fatal("usage: explain -user=<researcher id> -opportunity=<opportunity id>")
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

	profileDoc, outcome, err := idx.Researchers.Get(ctx, *userID)
	if err != nil {
		log.Fatalf("looking up researcher %s: %v", *userID, err)
	}
	if outcome == vectorindex.Degraded {
		log.Fatalf("researchers collection degraded, cannot resolve %s", *userID)
	}
	var profile models.ResearcherProfile
	if err := json.Unmarshal([]byte(profileDoc.Content), &profile); err != nil {
		log.Fatalf("decoding profile for %s: %v", *userID, err)
	}

	pool, err := matchstore.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connecting to match store: %v", err)
	}
	defer pool.Close()
	store := matchstore.NewStore(pool)

	matches, err := store.Get(ctx, *userID, 0)
	if err != nil {
		log.Fatalf("loading matches for %s: %v", *userID, err)
	}
	var match models.Match
	found := false
	for _, m := range matches {
		if m.OpportunityID == *opportunityID {
			match = m
			found = true
			break
		}
	}
	if !found {
		log.Fatalf("no stored match for user %s and opportunity %s; run rank first", *userID, *opportunityID)
	}

	e := &explain.Explainer{LLM: llmclient.New(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMRateLimitRPM)}
	result := e.Explain(ctx, profile, match, profile.Documents)

	fmt.Println("MATCH EXPLANATION:")
	fmt.Println(result.Explanation)
	fmt.Println()
	fmt.Println("REUSABLE CONTENT:")
	for _, rc := range result.ReusableContent {
		fmt.Printf("- %s: %s\n", rc.Source, rc.Relevance)
	}
	fmt.Println()
	fmt.Println("NEXT STEPS:")
	for i, step := range result.NextSteps {
		fmt.Printf("%d. %s\n", i+1, step)
	}
}
