package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/darwinpool/go-controller/internal/agents"
	"github.com/darwinpool/go-controller/internal/config"
	"github.com/darwinpool/go-controller/internal/genome"
	"github.com/darwinpool/go-controller/internal/store"
)

// #region main
func main() {
	cfgPath := flag.String("config", "", "path to controller.yaml")
	lineage := flag.String("lineage", "", "lineage id to create")
	payloadPath := flag.String("payload", "", "path to root genome JSON")
	rationale := flag.String("rationale", "initial genome", "rationale recorded on the root version")
	flag.Parse()

	if *lineage == "" || *payloadPath == "" {
		fmt.Fprintln(os.Stderr, "usage: bootstrap --lineage <id> --payload genome.json [--config controller.yaml] [--rationale text]")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	payload, err := os.ReadFile(*payloadPath)
	if err != nil {
		fatalf("read payload: %v", err)
	}
	if !json.Valid(payload) {
		fatalf("payload is not valid JSON")
	}
	// The root genome must render or no agent will ever run with it.
	if _, err := agents.SystemPrompt(payload); err != nil {
		fatalf("payload rejected: %v", err)
	}

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer st.Close()

	root, err := st.CreateLineage(genome.Version{
		LineageID: *lineage,
		Origin:    genome.OriginHuman,
		Lifecycle: genome.LifecycleActive,
		Rationale: *rationale,
		Payload:   payload,
	})
	if err != nil {
		fatalf("create lineage: %v", err)
	}

	fmt.Printf("lineage %s created\n", *lineage)
	fmt.Printf("  root version: %s\n", root.VersionID)
	fmt.Printf("  content hash: %s\n", root.ContentHash)
}

// #endregion main

// #region helpers
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// #endregion helpers
