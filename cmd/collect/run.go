package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/LJTian/NewsHarvest/internal/config"
	"github.com/LJTian/NewsHarvest/internal/harvest"
	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/LJTian/NewsHarvest/internal/storage"
	"github.com/spf13/cobra"
)

type runFlags struct {
	searchFile  string
	term        string
	source      string
	pages       string
	save        bool
	noDB        bool
	noSentiment bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one harvest: collect, score, export and bulk load",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := buildTask(f, cmd.Flags().Changed("save"))
			if err != nil {
				return err
			}
			return runHarvest(cmd, f, task)
		},
	}
	cmd.Flags().StringVar(&f.searchFile, "search", "search.yml", "search config file (search_term, news_source, pages)")
	cmd.Flags().StringVar(&f.term, "term", "", "search term, overrides the search file")
	cmd.Flags().StringVar(&f.source, "source", "", "news source: bbc or guardian")
	cmd.Flags().StringVar(&f.pages, "pages", "", `page range such as "1-9" or "1,3"`)
	cmd.Flags().BoolVar(&f.save, "save", false, "write the delimited results file")
	cmd.Flags().BoolVar(&f.noDB, "no-db", false, "skip postgres/redis; implies --save")
	cmd.Flags().BoolVar(&f.noSentiment, "no-sentiment", false, "skip sentiment scoring")
	return cmd
}

// buildTask 合并 search 文件与命令行参数，命令行优先。
// search 文件不存在且给出了 --term 时只用命令行参数。
func buildTask(f runFlags, saveChanged bool) (harvest.Task, error) {
	search := &config.Search{Pages: config.Pages{1}}
	if f.searchFile != "" {
		loaded, err := config.LoadSearch(f.searchFile)
		switch {
		case err == nil:
			search = loaded
		case errors.Is(err, fs.ErrNotExist) && f.term != "":
		default:
			return harvest.Task{}, err
		}
	}

	if f.term != "" {
		search.SearchTerm = f.term
	}
	if f.source != "" {
		search.NewsSource = f.source
	}
	if f.pages != "" {
		pages, err := config.ParsePages(f.pages)
		if err != nil {
			return harvest.Task{}, err
		}
		search.Pages = pages
	}
	if saveChanged {
		search.Save = f.save
	}

	task := harvest.Task{
		Request:     search.Request(),
		Save:        search.Save || f.noDB,
		Boilerplate: search.Boilerplate,
	}
	return task, task.Validate()
}

func runHarvest(cmd *cobra.Command, f runFlags, task harvest.Task) error {
	cfg := config.Load()
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	deps := harvest.Deps{NoSentiment: f.noSentiment, Logger: log}
	if !f.noDB {
		store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, log)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		store.Delimiter = cfg.BulkDelimiter
		if err := harvest.RegisterSources(store, harvest.SourceConfig(cfg, nil)); err != nil {
			return err
		}
		deps.Loader = store
		deps.PageCache = store.PageCache()
	}

	svc, err := harvest.FromConfig(cfg, deps)
	if err != nil {
		return err
	}
	res, err := svc.Harvest(cmd.Context(), task)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %q: %d records from %d pages (%d candidates, %d dropped)\n",
		res.Source, res.Term, res.Stats.Records, res.Stats.Pages, res.Stats.Candidates, res.Stats.Dropped)
	if res.File != "" {
		fmt.Fprintf(out, "results written to %s\n", res.File)
	}
	if !f.noDB {
		fmt.Fprintf(out, "%d new rows loaded\n", res.Inserted)
	}
	return nil
}
