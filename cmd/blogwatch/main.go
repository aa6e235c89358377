package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/suoware/blogwatch"
	"github.com/suoware/blogwatch/categorize"
	"github.com/suoware/blogwatch/config"
	"github.com/suoware/blogwatch/scraper"
	"github.com/suoware/blogwatch/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	subcommand := os.Args[1]

	switch subcommand {
	case "scrape":
		handleScrape(cfg, os.Args[2:])
	case "categorize":
		handleCategorize(cfg, os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("blogwatch - AWS blog post watcher")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  blogwatch <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  scrape      Collect posts published on a target date")
	fmt.Println("  categorize  Categorize and summarize collected posts")
	fmt.Println("  help        Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  BLOGWATCH_CONFIG  Path to an optional YAML config file")
	fmt.Println("  POSTS_TABLE       DynamoDB posts table (dynamo store)")
	fmt.Println("  CATEGORIES_TABLE  DynamoDB category history table (dynamo store)")
	fmt.Println("  GENAI_MODEL       Use batch inference for categorization")
}

func handleScrape(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	date := fs.String("date", "", "Target date as MM/DD/YYYY (default: yesterday)")
	storeKind := fs.String("store", "sqlite", "Post storage backend: sqlite or dynamo")
	dbPath := fs.String("db", "blogwatch.db", "SQLite database path (sqlite store)")
	fs.Parse(args)

	ctx := context.Background()
	posts, _, closeStores := openStores(ctx, cfg, *storeKind, *dbPath)
	defer closeStores()

	handler := &blogwatch.ScrapeHandler{
		Posts: posts,
		Crawler: scraper.NewService(scraper.Config{
			ListingURL: cfg.ListingURL,
			MaxLoads:   cfg.MaxLoads,
			NavTimeout: cfg.NavTimeout,
		}),
	}

	run(handler.Handle(ctx, blogwatch.Request{TargetDate: *date}))
}

func handleCategorize(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	date := fs.String("date", "", "Target date as MM/DD/YYYY (default: yesterday)")
	storeKind := fs.String("store", "sqlite", "Post storage backend: sqlite or dynamo")
	dbPath := fs.String("db", "blogwatch.db", "SQLite database path (sqlite store)")
	fs.Parse(args)

	ctx := context.Background()
	posts, history, closeStores := openStores(ctx, cfg, *storeKind, *dbPath)
	defer closeStores()

	handler := &blogwatch.CategorizeHandler{
		Posts:    posts,
		History:  history,
		Strategy: buildStrategy(ctx, cfg),
	}

	run(handler.Handle(ctx, blogwatch.Request{TargetDate: *date}))
}

// openStores builds the post and history stores for the chosen backend. The
// returned func releases whatever the backend holds open.
func openStores(ctx context.Context, cfg *config.Config, kind, dbPath string) (blogwatch.PostStore, blogwatch.CategoryHistoryStore, func()) {
	switch kind {
	case "sqlite":
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
			os.Exit(1)
		}
		return s, s, func() { s.Close() }
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load AWS configuration: %v\n", err)
			os.Exit(1)
		}
		s := store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.PostsTable, cfg.CategoriesTable)
		return s, s, func() {}
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown store %q (want sqlite or dynamo)\n", kind)
		os.Exit(1)
		return nil, nil, nil
	}
}

// buildStrategy picks URL-based or batch-inference categorization from the
// configuration.
func buildStrategy(ctx context.Context, cfg *config.Config) blogwatch.CategorizeStrategy {
	if !cfg.UseGenAI {
		return categorize.NewURLStrategy(cfg.BlogBaseURL, cfg.FallbackCategory)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load AWS configuration: %v\n", err)
		os.Exit(1)
	}

	return categorize.NewBatchStrategy(
		store.NewS3ObjectStore(s3.NewFromConfig(awsCfg), cfg.Region),
		categorize.NewBedrockJobService(bedrock.NewFromConfig(awsCfg), cfg.ModelID),
		categorize.BatchConfig{
			Bucket:  cfg.BatchBucket,
			Prefix:  cfg.BatchPrefix,
			RoleARN: cfg.RoleARN,
		},
	)
}

// run prints the handler response and exits nonzero on failure.
func run(resp blogwatch.Response) {
	fmt.Println(resp.Body)
	if resp.StatusCode != 200 {
		os.Exit(1)
	}
}
