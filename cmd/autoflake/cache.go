package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/Alok/autoflake/internal/cache"
	"github.com/Alok/autoflake/internal/output"
)

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the clean-file cache",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show the number and size of cache entries",
				Action: runCacheStats,
			},
			{
				Name:   "clear",
				Usage:  "Remove all cache entries",
				Action: runCacheClear,
			},
		},
	}
}

// openCache opens the configured cache directory whether or not the
// config enables caching for runs.
func openCache(c *cli.Context) (*cache.Cache, error) {
	loaded, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	cfg := loaded.Config
	if c.IsSet("cache-dir") {
		cfg.Cache.Dir = c.String("cache-dir")
	}
	return cache.New(cfg.Cache.Dir, cfg.Cache.TTL, true, version)
}

func runCacheStats(c *cli.Context) error {
	cch, err := openCache(c)
	if err != nil {
		return err
	}
	stats, err := cch.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	rows := [][]string{
		{"Directory", cch.Dir()},
		{"Entries", strconv.Itoa(stats.Entries)},
		{"Total size", fmt.Sprintf("%d bytes", stats.TotalSize)},
	}
	if stats.Entries > 0 {
		rows = append(rows,
			[]string{"Oldest entry", stats.OldestAge.Round(time.Second).String()},
			[]string{"Newest entry", stats.NewestAge.Round(time.Second).String()},
		)
	}
	table := output.NewTable("Cache", []string{"Metric", "Value"}, rows, stats)

	format := output.ParseFormat(c.String("format"))
	return output.NewFormatter(format, c.App.Writer, !c.Bool("no-color") && !color.NoColor).Output(table)
}

func runCacheClear(c *cli.Context) error {
	cch, err := openCache(c)
	if err != nil {
		return err
	}
	if err := cch.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintln(c.App.Writer, color.GreenString("Cache cleared: %s", cch.Dir()))
	return nil
}
