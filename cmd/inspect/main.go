package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/darwinpool/go-controller/internal/lineage"
	"github.com/darwinpool/go-controller/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to genepool.db")
	lineageID := flag.String("lineage", "", "lineage to inspect")
	versions := flag.Bool("versions", false, "list versions instead of the tree")
	tickets := flag.Bool("tickets", false, "list escalation tickets")
	runID := flag.String("run", "", "show a single evolution run")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	flag.Parse()

	if *dbPath == "" || (*lineageID == "" && *runID == "") {
		fmt.Fprintln(os.Stderr, "usage: inspect --db genepool.db --lineage <id> [--versions|--tickets|--json]")
		fmt.Fprintln(os.Stderr, "       inspect --db genepool.db --run <run-id> [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch {
	case *runID != "":
		err = runMode(st, *runID, *jsonOut)
	case *tickets:
		err = ticketMode(st, *lineageID, *jsonOut)
	case *versions:
		err = versionMode(st, *lineageID, *jsonOut)
	default:
		err = treeMode(st, *lineageID, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region tree-mode

func treeMode(st *store.Store, lineageID string, jsonOut bool) error {
	all, err := st.AllVersions(lineageID)
	if err != nil {
		return err
	}
	tree, err := lineage.Build(all)
	if err != nil {
		return err
	}
	ptr, err := st.GetPointer(lineageID)
	if err != nil {
		return err
	}

	if jsonOut {
		type row struct {
			Label       string `json:"label"`
			VersionID   string `json:"version_id"`
			ContentHash string `json:"content_hash"`
			ParentHash  string `json:"parent_hash"`
			Origin      string `json:"origin"`
			Active      bool   `json:"active"`
		}
		var rows []row
		tree.Walk(func(n *lineage.Node) {
			rows = append(rows, row{
				Label:       n.Label,
				VersionID:   n.Version.VersionID,
				ContentHash: n.Version.ContentHash,
				ParentHash:  n.Version.ParentHash,
				Origin:      string(n.Version.Origin),
				Active:      n.Version.VersionID == ptr.VersionID,
			})
		})
		return emitJSON(rows)
	}

	fmt.Printf("lineage %s (active: %s)\n", lineageID, ptr.VersionID)
	printNode(tree.Root, 0, ptr.VersionID)
	if len(tree.Quarantined) > 0 {
		fmt.Printf("quarantined (%d):\n", len(tree.Quarantined))
		for _, v := range tree.Quarantined {
			fmt.Printf("  %s parent=%s\n", v.VersionID, v.ParentHash)
		}
	}
	return nil
}

func printNode(n *lineage.Node, depth int, activeID string) {
	marker := ""
	if n.Version.VersionID == activeID {
		marker = "  <-- ACTIVE"
	}
	fmt.Printf("%s%s %s [%s] %s%s\n",
		strings.Repeat("  ", depth), n.Label, n.Version.VersionID,
		n.Version.Origin, n.Version.ContentHash, marker)
	for _, c := range n.Children {
		printNode(c, depth+1, activeID)
	}
}

// #endregion tree-mode

// #region version-mode

func versionMode(st *store.Store, lineageID string, jsonOut bool) error {
	sums, err := st.ListVersions(lineageID)
	if err != nil {
		return err
	}
	if jsonOut {
		return emitJSON(sums)
	}
	for _, s := range sums {
		rationale := s.Rationale
		if rationale == "" {
			rationale = "-"
		}
		fmt.Printf("%s  %s  %-9s  %-9s  %s\n",
			s.VersionID, s.ContentHash, s.Origin, s.Lifecycle, rationale)
	}
	return nil
}

// #endregion version-mode

// #region ticket-mode

func ticketMode(st *store.Store, lineageID string, jsonOut bool) error {
	tks, err := st.ListTickets(lineageID)
	if err != nil {
		return err
	}
	if jsonOut {
		return emitJSON(tks)
	}
	if len(tks) == 0 {
		fmt.Println("no tickets")
		return nil
	}
	for _, tk := range tks {
		fmt.Printf("%s  %s/%s  run=%s\n  %s\n", tk.TicketID, tk.Kind, tk.Status, tk.RunID, tk.Reason)
		for _, rec := range tk.History {
			line := fmt.Sprintf("  gen %d: %d challengers", rec.Generation, len(rec.Challengers))
			if rec.Judge != nil {
				line += fmt.Sprintf(", judge winner=%d", rec.Judge.WinnerIndex)
			}
			if rec.Supervisor != nil {
				line += fmt.Sprintf(", supervisor=%s (%s)", rec.Supervisor.ReasonCode, rec.Supervisor.Detail)
			}
			if rec.StageError != "" {
				line += ", error: " + rec.StageError
			}
			fmt.Println(line)
		}
	}
	return nil
}

// #endregion ticket-mode

// #region run-mode

func runMode(st *store.Store, runID string, jsonOut bool) error {
	run, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	if jsonOut {
		return emitJSON(run)
	}
	fmt.Printf("run %s lineage=%s status=%s\n", run.RunID, run.LineageID, run.Status)
	fmt.Printf("  base=%s judge_retries=%d supervisor_retries=%d\n",
		run.BaseVersionID, run.JudgeRetries, run.SupervisorRetries)
	for _, tr := range run.Transitions {
		fmt.Printf("  %s  %s -> %s  %s\n",
			tr.At.Format("15:04:05.000"), tr.From, tr.To, tr.Reason)
	}
	chs, err := st.ListChallengers(runID)
	if err != nil {
		return err
	}
	for _, c := range chs {
		fmt.Printf("  challenger g%d#%d hash=%s %s\n", c.Generation, c.AttemptIndex, c.ContentHash, c.Rationale)
	}
	return nil
}

// #endregion run-mode

// #region helpers

func emitJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
