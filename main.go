package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"

	"kprss/pkg/config"
	"kprss/pkg/filehost"
	"kprss/pkg/pipeline"
	"kprss/pkg/site"
	"kprss/pkg/snapshot"
	"kprss/pkg/store"

	"github.com/joho/godotenv"
)

func main() {
	ctx := context.Background()

	// Optional .env for local runs; scheduled invocations configure via
	// SSM and environment.
	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	workdir := os.Getenv("WORKDIR")
	if workdir == "" {
		workdir = "."
	}

	var syncer *snapshot.Syncer
	if cfg.SnapshotBucket != "" {
		storage, err := snapshot.NewS3Storage(ctx, cfg.SnapshotBucket)
		if err != nil {
			log.Fatalf("Failed to set up snapshot storage: %v", err)
		}
		syncer = snapshot.NewSyncer(storage, cfg.DBFile)
		if err := syncer.Restore(ctx, workdir); err != nil {
			log.Fatalf("Failed to restore database snapshot: %v", err)
		}
	} else {
		log.Printf("Snapshot bucket not set; skipping database restore")
	}

	st, err := store.Open(store.Config{
		Path:         filepath.Join(workdir, cfg.DBFile),
		ArticleTable: cfg.SiteShort,
	})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	var host pipeline.FileHost
	if cfg.FileHostToken != "" {
		host = filehost.New(cfg.FileHostToken)
	} else {
		log.Printf("File host token not set; photo publishing disabled")
	}

	p := pipeline.New(cfg, st, host, pipeline.DefaultDelays(), workdir)
	processed, err := p.Run(ctx)
	if err != nil {
		_ = st.Close()
		if errors.Is(err, site.ErrSessionLimit) {
			log.Fatalf("Login rejected: %v", err)
		}
		log.Fatalf("Run failed after %d articles: %v", processed, err)
	}
	log.Printf("Successfully processed %d articles", processed)

	// The store must be closed before the file is zipped for archival.
	if err := st.Close(); err != nil {
		log.Fatalf("Failed to close store: %v", err)
	}

	if syncer != nil {
		if err := syncer.Archive(ctx, workdir); err != nil {
			log.Fatalf("Failed to archive database snapshot: %v", err)
		}
	} else {
		log.Printf("Snapshot bucket not set; skipping database archive")
	}
}
