package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/noah-isme/attendance-sheet/internal/attendance"
	"github.com/noah-isme/attendance-sheet/internal/models"
	"github.com/noah-isme/attendance-sheet/internal/repository"
	"github.com/noah-isme/attendance-sheet/pkg/cache"
	"github.com/noah-isme/attendance-sheet/pkg/config"
	"github.com/noah-isme/attendance-sheet/pkg/database"
)

type finding struct {
	Index   int
	Code    string
	Problem string
}

func main() {
	var (
		driver   string
		file     string
		dumpJSON bool
		timeout  time.Duration
	)

	flag.StringVar(&driver, "driver", "", "Backup driver to read (file, postgres, redis); defaults to BACKUP_DRIVER")
	flag.StringVar(&file, "file", "", "Snapshot file to read directly; overrides -driver")
	flag.BoolVar(&dumpJSON, "json", false, "Print the decoded snapshot as JSON")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "Connection timeout for postgres/redis")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if driver == "" {
		driver = cfg.Backup.Driver
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	state, source, err := loadSnapshot(ctx, cfg, driver, file)
	if err != nil {
		log.Fatalf("failed to read snapshot from %s: %v", source, err)
	}

	if dumpJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(state); err != nil {
			log.Fatalf("encode snapshot: %v", err)
		}
		return
	}

	findings := validate(state)
	printReport(source, state, findings)
	if len(findings) > 0 {
		os.Exit(1)
	}
}

// loadSnapshot reads file snapshots directly so a damaged file is reported, not moved aside.
func loadSnapshot(ctx context.Context, cfg *config.Config, driver, file string) (models.SessionState, string, error) {
	if file == "" && driver == config.BackupDriverFile {
		file = filepath.Join(cfg.Backup.FileDir, cfg.Backup.SessionID+".json")
	}
	if file != "" {
		payload, err := os.ReadFile(file)
		if err != nil {
			return models.SessionState{}, file, err
		}
		state, err := repository.ParseSnapshot(payload)
		return state, file, err
	}

	switch driver {
	case config.BackupDriverPostgres:
		source := fmt.Sprintf("postgres %s/%s", cfg.Database.Host, cfg.Database.Name)
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return models.SessionState{}, source, err
		}
		defer db.Close()
		state, err := repository.NewPostgresSnapshotRepository(db, cfg.Backup.SessionID).Load(ctx)
		return state, source, err
	case config.BackupDriverRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return models.SessionState{}, "redis", err
		}
		repo := repository.NewRedisSnapshotRepository(client, cfg.Redis.KeyPrefix, cfg.Backup.SessionID)
		defer repo.Close()
		state, err := repo.Load(ctx)
		return state, "redis " + repo.Key(), err
	default:
		return models.SessionState{}, driver, fmt.Errorf("unknown driver %q", driver)
	}
}

// validate re-derives each row's totals from its day records.
func validate(state models.SessionState) []finding {
	var out []finding
	for _, idx := range sortedIndices(state.Rows) {
		row := state.Rows[idx]
		add := func(format string, args ...interface{}) {
			out = append(out, finding{Index: idx, Code: row.Code, Problem: fmt.Sprintf(format, args...)})
		}
		if row.Month < 1 || row.Month > 12 {
			add("invalid month %d", row.Month)
			continue
		}
		period := models.Period{Month: row.Month, Year: row.Year}
		if want := period.DaysInMonth(); len(row.Days) != want {
			add("has %d day records, %s has %d", len(row.Days), period, want)
		}

		var counts models.StatusCounts
		var overtime float64
		for _, d := range row.Days {
			if !d.Status.Valid() {
				add("day %d has unknown status %q", d.Day, d.Status)
			}
			counts.Add(d.Status)
			overtime += d.Overtime
		}
		if counts != row.Counts {
			add("status counts %+v do not match day records %+v", row.Counts, counts)
		}
		if want := counts.Present + counts.HalfLeave + counts.Leave + counts.PaidHoliday; row.TotalAttendance != want {
			add("total attendance %d, expected %d", row.TotalAttendance, want)
		}
		if want := attendance.Round2(overtime); row.TotalOvertime != want {
			add("total overtime %.2f, expected %.2f", row.TotalOvertime, want)
		}
	}
	return out
}

func sortedIndices(rows map[int]models.EmployeeRow) []int {
	indices := make([]int, 0, len(rows))
	for idx := range rows {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

func printReport(source string, state models.SessionState, findings []finding) {
	fmt.Println("Session Backup Report")
	fmt.Println("=====================")
	fmt.Printf("Source: %s\n", source)
	fmt.Printf("Current index: %d | Saved rows: %d\n", state.CurrentIndex, len(state.Rows))
	for _, idx := range sortedIndices(state.Rows) {
		row := state.Rows[idx]
		fmt.Printf("  #%d %s %s (%02d/%d) attendance=%d ot=%.2f\n", idx+1, row.Code, row.Name, row.Month, row.Year, row.TotalAttendance, row.TotalOvertime)
	}
	if len(findings) == 0 {
		fmt.Println("No problems found")
		return
	}
	fmt.Printf("Problems: %d\n", len(findings))
	for _, f := range findings {
		fmt.Printf("  [row #%d %s] %s\n", f.Index+1, f.Code, f.Problem)
	}
}
