package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
)

// Item is the record shape inserted by the load test. The target table needs
// name (string), price (int) and due (date) fields.
type Item struct {
	Name  string    `json:"name"`
	Price *int      `json:"price"`
	Due   time.Time `json:"due"`
}

var (
	serverURL   string
	table       string
	numRecords  int
	batchSize   int
	concurrency int
	nullRatio   float64
)

var rootCmd = &cobra.Command{
	Use:   "livedb-load",
	Short: "Insert random items into a livedb table and report aggregates",
	Example: `  livedb-load --records 1000
  livedb-load --records 50000 --batch 500 --concurrency 8 --url http://localhost:8080`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if numRecords <= 0 {
			return fmt.Errorf("number of records must be greater than 0")
		}
		if batchSize <= 0 || batchSize > 1000 {
			return fmt.Errorf("batch size must be between 1 and 1000")
		}
		return run(cmd.OutOrStdout())
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&serverURL, "url", "http://localhost:8080", "Server URL")
	flags.StringVar(&table, "table", "items", "Target table")
	flags.IntVarP(&numRecords, "records", "n", 1000, "Number of records to insert")
	flags.IntVar(&batchSize, "batch", 100, "Records per batch request")
	flags.IntVar(&concurrency, "concurrency", 4, "Concurrent batch requests")
	flags.Float64Var(&nullRatio, "null-ratio", 0.1, "Fraction of records inserted with a null price")
}

// generateRandomName generates a random 6-letter name
func generateRandomName() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	name := make([]byte, 6)
	for i := range name {
		name[i] = letters[rand.Intn(len(letters))]
	}
	name[0] = name[0] - 32
	return string(name)
}

func randomItem() Item {
	item := Item{
		Name: generateRandomName(),
		Due:  time.Now().UTC().Add(time.Duration(rand.Intn(90*24)) * time.Hour).Truncate(time.Second),
	}
	if rand.Float64() >= nullRatio {
		price := rand.Intn(1000) + 1
		item.Price = &price
	}
	return item
}

// insertBatch sends one batch insert request
func insertBatch(client *http.Client, items []Item) error {
	body, err := json.Marshal(map[string]interface{}{"records": items})
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	resp, err := client.Post(serverURL+"/tables/"+table+"/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func aggregate(client *http.Client, op, field string) (interface{}, error) {
	resp, err := client.Get(fmt.Sprintf("%s/tables/%s/aggregate/%s/%s", serverURL, table, op, field))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var out struct {
		Value interface{} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func run(out io.Writer) error {
	client := &http.Client{Timeout: 30 * time.Second}

	var failed atomic.Int64
	var inserted atomic.Int64
	pool, err := ants.NewPool(concurrency, ants.WithPanicHandler(func(v any) {
		failed.Add(1)
		fmt.Fprintf(out, "batch panicked: %v\n", v)
	}))
	if err != nil {
		return err
	}
	defer pool.Release()

	fmt.Fprintf(out, "Starting load test: inserting %d records into %s at %s\n", numRecords, table, serverURL)
	startTime := time.Now()

	done := make(chan struct{}, numRecords/batchSize+1)
	batches := 0
	for start := 0; start < numRecords; start += batchSize {
		n := min(batchSize, numRecords-start)
		items := make([]Item, n)
		for i := range items {
			items[i] = randomItem()
		}
		batches++
		err := pool.Submit(func() {
			defer func() { done <- struct{}{} }()
			if err := insertBatch(client, items); err != nil {
				failed.Add(int64(len(items)))
				fmt.Fprintf(out, "Error inserting batch: %v\n", err)
				return
			}
			inserted.Add(int64(len(items)))
		})
		if err != nil {
			return err
		}
	}

	reportInterval := max(1, batches/10)
	for i := 1; i <= batches; i++ {
		<-done
		if i%reportInterval == 0 || i == batches {
			elapsed := time.Since(startTime)
			fmt.Fprintf(out, "Progress: %d/%d batches - Rate: %.1f records/sec - Inserted: %d, Failed: %d\n",
				i, batches, float64(inserted.Load())/elapsed.Seconds(), inserted.Load(), failed.Load())
		}
	}

	totalTime := time.Since(startTime)
	fmt.Fprintln(out, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(out, "LOAD TEST COMPLETE")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Records attempted:  %d\n", numRecords)
	fmt.Fprintf(out, "Inserted:           %d\n", inserted.Load())
	fmt.Fprintf(out, "Failed:             %d\n", failed.Load())
	fmt.Fprintf(out, "Total time:         %v\n", totalTime)
	fmt.Fprintf(out, "Average rate:       %.2f records/sec\n", float64(inserted.Load())/totalTime.Seconds())

	fmt.Fprintln(out)
	for _, agg := range []struct{ op, field string }{
		{"min", "price"}, {"max", "price"}, {"sum", "price"}, {"average", "price"},
		{"mindate", "due"}, {"maxdate", "due"},
	} {
		start := time.Now()
		value, err := aggregate(client, agg.op, agg.field)
		if err != nil {
			return fmt.Errorf("%s(%s): %w", agg.op, agg.field, err)
		}
		fmt.Fprintf(out, "%-8s %-6s = %-30v (%v)\n", agg.op, agg.field, value, time.Since(start))
	}

	if failed.Load() > 0 {
		return fmt.Errorf("%d records failed to insert", failed.Load())
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
