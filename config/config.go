// Package config loads runtime configuration from the environment, with an
// optional YAML file providing overrides for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ListingURL is the paginated listing the crawler walks. The query string
// opens every category facet so the listing carries all posts in
// date-descending order.
const ListingURL = "https://aws.amazon.com/blogs/?awsf.blog-master-category=*all&awsf.blog-master-learning-levels=*all&awsf.blog-master-industry=*all&awsf.blog-master-analytics-products=*all&awsf.blog-master-artificial-intelligence=*all&awsf.blog-master-aws-cloud-financial-management=*all&awsf.blog-master-blockchain=*all&awsf.blog-master-business-applications=*all&awsf.blog-master-compute=*all&awsf.blog-master-customer-enablement=*all&awsf.blog-master-customer-engagement=*all&awsf.blog-master-database=*all&awsf.blog-master-developer-tools=*all&awsf.blog-master-devops=*all&awsf.blog-master-end-user-computing=*all&awsf.blog-master-mobile=*all&awsf.blog-master-iot=*all&awsf.blog-master-management-governance=*all&awsf.blog-master-media-services=*all&awsf.blog-master-migration-transfer=*all&awsf.blog-master-migration-solutions=*all&awsf.blog-master-networking-content-delivery=*all&awsf.blog-master-programming-language=*all&awsf.blog-master-sector=*all&awsf.blog-master-security=*all&awsf.blog-master-storage=*all"

// Config holds everything the handlers and adapters need at startup.
type Config struct {
	Region           string        `yaml:"region"`
	PostsTable       string        `yaml:"posts_table"`
	CategoriesTable  string        `yaml:"categories_table"`
	BatchBucket      string        `yaml:"batch_bucket"`
	BatchPrefix      string        `yaml:"batch_prefix"`
	ModelID          string        `yaml:"model_id"`
	RoleARN          string        `yaml:"role_arn"`
	ListingURL       string        `yaml:"listing_url"`
	BlogBaseURL      string        `yaml:"blog_base_url"`
	FallbackCategory string        `yaml:"fallback_category"`
	UseGenAI         bool          `yaml:"use_genai"`
	MaxLoads         int           `yaml:"max_loads"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Region:           "us-east-1",
		PostsTable:       "suo-aws-posts",
		CategoriesTable:  "suo-categories",
		BatchBucket:      "aws-news-batch-inference",
		BatchPrefix:      "batch-inference",
		ListingURL:       ListingURL,
		BlogBaseURL:      "https://aws.amazon.com/blogs/",
		FallbackCategory: "unknown",
		MaxLoads:         50,
		NavTimeout:       60 * time.Second,
	}
}

// Load builds the configuration from defaults, an optional config file named
// by BLOGWATCH_CONFIG, and finally environment variables. A missing config
// file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("BLOGWATCH_CONFIG"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.Region = getEnv("AWS_REGION", cfg.Region)
	cfg.PostsTable = getEnv("POSTS_TABLE", cfg.PostsTable)
	cfg.CategoriesTable = getEnv("CATEGORIES_TABLE", cfg.CategoriesTable)
	cfg.BatchBucket = getEnv("BATCH_BUCKET", cfg.BatchBucket)
	cfg.BatchPrefix = getEnv("BATCH_PREFIX", cfg.BatchPrefix)
	cfg.ModelID = getEnv("BEDROCK_MODEL_ID", cfg.ModelID)
	cfg.RoleARN = getEnv("BATCH_ROLE_ARN", cfg.RoleARN)
	cfg.ListingURL = getEnv("LISTING_URL", cfg.ListingURL)
	cfg.BlogBaseURL = getEnv("BLOG_BASE_URL", cfg.BlogBaseURL)
	cfg.FallbackCategory = getEnv("FALLBACK_CATEGORY", cfg.FallbackCategory)

	if v := os.Getenv("GENAI_MODEL"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid GENAI_MODEL value %q: %w", v, err)
		}
		cfg.UseGenAI = enabled
	}
	if v := os.Getenv("MAX_LOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_LOADS value %q", v)
		}
		cfg.MaxLoads = n
	}

	return cfg, nil
}

// loadFile overlays values from a YAML config file onto cfg.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist -- not an error
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
