package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"newsbrief/internal/briefer"
	"newsbrief/internal/config"
	"newsbrief/internal/delivery"
	"newsbrief/internal/extractor"
	"newsbrief/internal/fetcher"
	"newsbrief/internal/model"
	"newsbrief/internal/notifier"
	"newsbrief/internal/source"
	"newsbrief/internal/storage"
	"newsbrief/internal/summarizer"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	cfg := config.Get()

	db, err := sqlx.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Printf("ERROR: failed to connect to db: %v", err)
		return
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := storage.InitSchema(ctx, db); err != nil {
		log.Printf("ERROR: failed to init schema: %v", err)
		return
	}

	var (
		feedStorage       = storage.NewFeedStorage(db)
		itemStorage       = storage.NewItemStorage(db)
		briefStorage      = storage.NewBriefStorage(db)
		preferenceStorage = storage.NewPreferenceStorage(db)
		digestStorage     = storage.NewDigestStorage(db)
	)

	newSource := func(feed model.Feed) fetcher.Source {
		return source.NewRSSSourceFromFeed(feed, cfg.FeedTimeout, cfg.UserAgent)
	}

	var pageExtractor briefer.Extractor
	switch cfg.ExtractorMode {
	case "remote":
		pageExtractor = extractor.NewRemote(cfg.ExtractorEndpoint, cfg.ExtractorAPIKey)
	default:
		pageExtractor = extractor.NewReadability(cfg.UserAgent)
	}

	var (
		summarizerClient = summarizer.New(
			cfg.LLMBaseURL,
			cfg.LLMAPIKey,
			cfg.LLMModel,
			cfg.LLMMaxTokens,
			cfg.LLMRequestsPerMinute,
		)
		deliveryClient = delivery.New(cfg.EmailEndpoint, cfg.EmailAPIKey)

		feedFetcher = fetcher.New(
			feedStorage,
			itemStorage,
			newSource,
			cfg.FilterKeywords,
			cfg.FetchInterval,
			cfg.FetchConcurrency,
		)
		briefCompiler = briefer.New(
			preferenceStorage,
			itemStorage,
			briefStorage,
			pageExtractor,
			summarizerClient,
			cfg.BriefInterval,
			cfg.LookbackWindow,
			cfg.BriefConcurrency,
		)
		digestNotifier = notifier.New(
			preferenceStorage,
			briefStorage,
			digestStorage,
			deliveryClient,
			cfg.EmailFrom,
			cfg.DigestInterval,
			cfg.LookbackWindow,
			cfg.DigestConcurrency,
		)
	)

	go func(ctx context.Context) {
		if err := feedFetcher.Run(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("ERROR: failed to run fetcher: %v", err)
				return
			}

			log.Println("Fetcher has stopped")
		}
	}(ctx)

	go func(ctx context.Context) {
		if err := briefCompiler.Run(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("ERROR: failed to run briefer: %v", err)
				return
			}

			log.Println("Briefer has stopped")
		}
	}(ctx)

	if err := digestNotifier.Run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("ERROR: failed to run notifier: %v", err)
			return
		}

		log.Println("Notifier has stopped")
	}
}
