package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/suoware/blogwatch"
	"github.com/suoware/blogwatch/categorize"
	"github.com/suoware/blogwatch/config"
	"github.com/suoware/blogwatch/scraper"
	"github.com/suoware/blogwatch/store"
)

// handlerFunc is what both entry points reduce to once wired.
type handlerFunc func(ctx context.Context, req blogwatch.Request) (blogwatch.Response, error)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS configuration")
	}

	posts := store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.PostsTable, cfg.CategoriesTable)

	mode := os.Getenv("BLOGWATCH_MODE")
	var handler handlerFunc
	switch mode {
	case "categorize":
		h := &blogwatch.CategorizeHandler{
			Posts:    posts,
			History:  posts,
			Strategy: buildStrategy(cfg, awsCfg),
		}
		handler = wrap(h.Handle)
	case "scrape", "":
		h := &blogwatch.ScrapeHandler{
			Posts: posts,
			Crawler: scraper.NewService(scraper.Config{
				ListingURL: cfg.ListingURL,
				MaxLoads:   cfg.MaxLoads,
				NavTimeout: cfg.NavTimeout,
			}),
		}
		handler = wrap(h.Handle)
	default:
		log.Fatal().Str("mode", mode).Msg("Unknown BLOGWATCH_MODE, want scrape or categorize")
	}

	lambda.Start(handler)
}

// wrap adapts a handler to the runtime's two-value signature. Handlers fold
// their own failures into the response, so the error is always nil.
func wrap(handle func(ctx context.Context, req blogwatch.Request) blogwatch.Response) handlerFunc {
	return func(ctx context.Context, req blogwatch.Request) (blogwatch.Response, error) {
		return handle(ctx, req), nil
	}
}

func buildStrategy(cfg *config.Config, awsCfg aws.Config) blogwatch.CategorizeStrategy {
	if !cfg.UseGenAI {
		return categorize.NewURLStrategy(cfg.BlogBaseURL, cfg.FallbackCategory)
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
