package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/darwinpool/go-controller/internal/agents"
	"github.com/darwinpool/go-controller/internal/config"
	"github.com/darwinpool/go-controller/internal/genome"
	"github.com/darwinpool/go-controller/internal/orchestrator"
	"github.com/darwinpool/go-controller/internal/store"
)

// #region main
func main() {
	cfgPath := flag.String("config", "", "path to controller.yaml")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	client := agents.NewClient(cfg.Model.APIKey, cfg.Model.BaseURL, agents.Models{
		Mutator:    cfg.Model.MutatorModel,
		Judge:      cfg.Model.JudgeModel,
		Supervisor: cfg.Model.SupervisorModel,
	})
	eng := orchestrator.NewEngine(st,
		agents.NewMutator(client),
		agents.NewJudge(client),
		agents.NewSupervisor(client),
		orchestrator.Timeouts{
			Mutate:    cfg.Timeouts.Mutate.Std(),
			Judge:     cfg.Timeouts.Judge.Std(),
			Supervise: cfg.Timeouts.Supervise.Std(),
		})

	fmt.Println("Gene Pool Controller ready.")
	fmt.Printf("  DB: %s | Model gateway: %s\n", cfg.DBPath, orDefault(cfg.Model.BaseURL, "api.openai.com"))
	fmt.Println("Paste a trigger as one JSON line (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		var trig orchestrator.Trigger
		if err := json.Unmarshal([]byte(line), &trig); err != nil {
			log.Printf("parse trigger: %v", err)
			continue
		}

		run, err := eng.Execute(context.Background(), trig)
		if err != nil {
			log.Printf("run error: %v", err)
			continue
		}

		fmt.Printf("[%s] status=%s stage=%s judge_retries=%d supervisor_retries=%d\n",
			run.RunID, run.Status, run.Stage, run.JudgeRetries, run.SupervisorRetries)
		if run.Status == genome.RunDeployed {
			if active, err := st.Resolve(run.LineageID); err == nil {
				fmt.Printf("  active: %s (hash=%s)\n", active.VersionID, active.ContentHash)
			}
		}
	}
}

// #endregion main

// #region helpers
func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// #endregion helpers
