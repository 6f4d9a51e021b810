// Command seed initializes the content repository from a seed JSON file:
// it writes the global content list and compiles the first catalog snapshot.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"openlearn/api/internal/blobrepo"
	"openlearn/api/internal/catalog"
	"openlearn/api/internal/config"
	"openlearn/api/internal/docstore"
)

func main() {
	seedPath := flag.String("seed", "data/seed_contents.json", "path to the seed content JSON file")
	force := flag.Bool("force", false, "overwrite an existing content list")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	raw, err := os.ReadFile(*seedPath)
	if err != nil {
		log.Fatalf("read seed file: %v", err)
	}
	var contents []catalog.Content
	if err := json.Unmarshal(raw, &contents); err != nil {
		log.Fatalf("parse seed file: %v", err)
	}
	log.Printf("Found %d items in %s", len(contents), *seedPath)

	if err := os.MkdirAll(cfg.RepoDir, 0o755); err != nil {
		log.Fatalf("create repo dir: %v", err)
	}
	repo, err := blobrepo.New(blobrepo.Config{
		Dir:    cfg.RepoDir,
		Owner:  cfg.RepoOwner,
		Name:   cfg.RepoName,
		Branch: cfg.RepoBranch,
		Author: cfg.AuthorName,
	})
	if err != nil {
		log.Fatalf("content repository init failed: %v", err)
	}
	store := docstore.New(repo)

	revision, err := store.Get(ctx, catalog.ContentsPath, nil)
	if err == nil && !*force {
		log.Fatalf("content list already exists at %s (revision %s); re-run with -force to overwrite", catalog.ContentsPath, revision)
	}

	if _, err := store.Save(ctx, catalog.ContentsPath, contents, "Initialize global content with demo data", revision); err != nil {
		log.Fatalf("write content list: %v", err)
	}
	log.Printf("Global content initialized at %s", catalog.ContentsPath)

	catalogService := catalog.NewService(store, nil)
	snapshot, err := catalogService.Regenerate(ctx)
	if err != nil {
		log.Fatalf("compile catalog snapshot: %v", err)
	}
	log.Printf("Catalog snapshot compiled: %d items in %d categories", snapshot.TotalAvailable, len(snapshot.Categories))
}
