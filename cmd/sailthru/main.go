package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/natserract/sailthru/pkg/bulk"
	"github.com/natserract/sailthru/pkg/config"
	"github.com/natserract/sailthru/pkg/logger"
	"github.com/natserract/sailthru/pkg/sailthru"
	"github.com/natserract/sailthru/pkg/store/postgres"
	"go.uber.org/zap"
)

const usage = `usage:
  sailthru get|post|delete <action> [json]
  sailthru import-users <file.jsonl>
  sailthru wait-job <job_id>
  sailthru history [limit]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, os.Args[1], os.Args[2:]); err != nil {
		log.Error("Command failed", zap.String("command", os.Args[1]), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, command string, args []string) error {
	// The call log is optional for API commands and required for history.
	var callLog *postgres.CallLog
	if cfg.RecordCalls || command == "history" {
		db, err := postgres.New(ctx, postgres.NewConfig(), log)
		if err != nil {
			return fmt.Errorf("connect call log database: %w", err)
		}
		defer db.Close()

		callLog = postgres.NewCallLog(db, log)
		if err := callLog.InitSchema(ctx); err != nil {
			return err
		}
	}

	if command == "history" {
		return history(ctx, callLog, args)
	}

	var opts []sailthru.Option
	if cfg.RecordCalls {
		opts = append(opts, sailthru.WithRecorder(callLog))
	}
	client, err := sailthru.NewWithLogger(cfg, log, opts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	switch command {
	case "get", "post", "delete":
		return call(ctx, client, command, args)
	case "import-users":
		return importUsers(ctx, client, log, cfg.ImportRate, args)
	case "wait-job":
		if len(args) != 1 {
			return fmt.Errorf("wait-job requires a job id\n%s", usage)
		}
		resp, err := client.WaitForJob(ctx, args[0], sailthru.WaitOptions{})
		if err != nil {
			return err
		}
		return printJSON(resp)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func call(ctx context.Context, client *sailthru.Client, method string, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%s requires an action and optional json\n%s", method, usage)
	}
	action := sailthru.Action(args[0])

	var data map[string]any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &data); err != nil {
			return fmt.Errorf("parse json argument: %w", err)
		}
	}

	var (
		resp sailthru.Value
		err  error
	)
	switch method {
	case "get":
		resp, err = client.APIGet(ctx, action, data)
	case "post":
		resp, err = client.APIPost(ctx, action, data)
	case "delete":
		resp, err = client.APIDelete(ctx, action, data)
	}
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func importUsers(ctx context.Context, client *sailthru.Client, log *zap.Logger, rateLimit float64, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("import-users requires a file\n%s", usage)
	}
	users, err := readUsers(args[0])
	if err != nil {
		return err
	}

	importer := bulk.NewImporter(client, bulk.DefaultMaxGoroutines, log).WithRateLimit(rateLimit)
	results, metrics, importErr := importer.Import(ctx, users)

	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("FAIL %s: %v\n", r.ID, r.Err)
		}
	}
	fmt.Printf("Import Metrics:\n")
	fmt.Printf("  Users: %d succeeded, %d failed\n", metrics.Succeeded, metrics.Failed)
	return importErr
}

// readUsers parses one user object per line; blank lines are skipped.
func readUsers(path string) ([]sailthru.UserParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var users []sailthru.UserParams
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var u sailthru.UserParams
		if err := json.Unmarshal([]byte(text), &u); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		users = append(users, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return users, nil
}

func history(ctx context.Context, callLog *postgres.CallLog, args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	records, err := callLog.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, r := range records {
		status := strconv.Itoa(r.StatusCode)
		if r.Error != "" {
			status = "error: " + r.Error
		}
		fmt.Printf("%s  %-6s %-12s %6dms  %s\n",
			r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), r.Method, r.Action, r.Duration.Milliseconds(), status)
	}
	return nil
}

func printJSON(v sailthru.Value) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
