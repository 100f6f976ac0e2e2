// Command roomcast-search queries a node's message log offline, without a
// running node.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eldtechnologies/roomcast/internal/models"
	"github.com/eldtechnologies/roomcast/internal/store"
)

func main() {
	var (
		dbPath      = flag.String("db", "./data/roomcast.db", "sqlite log file")
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres DSN, overrides -db")
		group       = flag.String("group", "", "group to query (required)")
		query       = flag.String("q", "", "substring to search for; omit to list recent messages")
		limit       = flag.Int("limit", 50, "maximum rows")
	)
	flag.Parse()

	if *group == "" {
		fmt.Fprintln(os.Stderr, "error: -group is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log, err := store.Open(ctx, *databaseURL, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open log: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	var rows []models.MessageRecord
	if *query != "" {
		rows, err = log.Search(ctx, *group, *query, *limit)
	} else {
		rows, err = log.Recent(ctx, *group, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: query failed: %v\n", err)
		os.Exit(1)
	}

	if len(rows) == 0 {
		fmt.Println("no messages")
		return
	}
	for _, r := range rows {
		ts := time.Unix(int64(r.TS), 0).Format("2006-01-02 15:04:05")
		fmt.Printf("%s [%s] %s: %s\n", ts, r.Direction, r.FromUser, r.Text)
	}
}
