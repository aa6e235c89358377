package categorize

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/suoware/blogwatch"
)

// serviceCategories is the closed set the categorization prompt lets the
// model choose from.
var serviceCategories = []string{
	"Serverless", "Storage", "Database", "Networking", "Security",
	"AI/ML", "Analytics", "Compute", "Containers", "IoT",
	"Management Tools", "Developer Tools", "Mobile", "Media Services",
	"Integration", "Blockchain", "Business Applications", "End User Computing",
	"Game Development", "Quantum Computing",
}

// Fallbacks for posts the inference output does not cover. Missing output
// never drops a post.
const (
	FallbackCategory = "Uncategorized"
	FallbackSummary  = "Summary not available."
)

const (
	categorizationPrompt = `You are an AWS expert. Analyze this AWS blog post and determine which AWS service categories it belongs to.
Choose from these categories: %s only.
Each category should be relevant to the content of the post.
If the post does not fit any of these categories, return 'Uncategorized'.
If the post fits multiple categories, return the most relevant ones.
You can select multiple categories if applicable, but limit to the 3 most relevant ones.

Blog post title: %s
Blog post content: %s

Return only the category names separated by commas, nothing else.`

	summarizationPrompt = `You are an AWS expert. Create a concise summary (maximum 5 sentences) of this AWS blog post.
Focus on the key announcements, features, or changes described.

Blog post title: %s
Blog post content: %s

Return only the summary, nothing else.`
)

const (
	// Record-ID suffixes tie each output line back to its post.
	categorySuffix = "_cat"
	summarySuffix  = "_sum"

	// Description clamps keep prompt sizes bounded.
	categoryDescriptionLimit = 1000
	summaryDescriptionLimit  = 2000

	// DefaultPollInterval is the spacing between job status checks.
	DefaultPollInterval = 60 * time.Second
	// DefaultDeadline bounds how long a batch run waits for its jobs.
	DefaultDeadline = 60 * time.Minute
)

// inferenceRecord is one line of a job input file.
type inferenceRecord struct {
	RecordID   string     `json:"recordId"`
	ModelInput modelInput `json:"modelInput"`
}

type modelInput struct {
	SchemaVersion   string          `json:"schemaVersion"`
	Messages        []message       `json:"messages"`
	InferenceConfig inferenceConfig `json:"inferenceConfig"`
}

type message struct {
	Role    string           `json:"role"`
	Content []messageContent `json:"content"`
}

type messageContent struct {
	Text string `json:"text"`
}

type inferenceConfig struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	TopP         float64 `json:"top_p"`
	TopK         int     `json:"top_k"`
	Temperature  float64 `json:"temperature"`
}

// outputRecord is one line of a job output file.
type outputRecord struct {
	RecordID    string `json:"recordId"`
	ModelOutput struct {
		Output struct {
			Message struct {
				Content []messageContent `json:"content"`
			} `json:"message"`
		} `json:"output"`
	} `json:"modelOutput"`
}

// BatchConfig holds the settings for batch-inference runs.
type BatchConfig struct {
	Bucket       string
	Prefix       string
	RoleARN      string
	WorkDir      string
	PollInterval time.Duration
	Deadline     time.Duration
}

// BatchStrategy categorizes and summarizes posts through two asynchronous
// inference jobs built from the same post set. If either job misses its
// success state within the deadline the whole run fails; no partial merge
// is attempted.
type BatchStrategy struct {
	objects blogwatch.ObjectStore
	jobs    blogwatch.InferenceJobService
	cfg     BatchConfig
}

// NewBatchStrategy creates the strategy with defaulted polling settings.
func NewBatchStrategy(objects blogwatch.ObjectStore, jobs blogwatch.InferenceJobService, cfg BatchConfig) *BatchStrategy {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	return &BatchStrategy{objects: objects, jobs: jobs, cfg: cfg}
}

// Categorize implements the categorization strategy contract.
func (s *BatchStrategy) Categorize(ctx context.Context, posts []blogwatch.PostRecord) ([]blogwatch.PostRecord, []string, error) {
	jobBase := s.jobName(posts)
	log.Info().Int("posts", len(posts)).Str("job", jobBase).Msg("Starting batch inference")

	catFile, sumFile, err := s.writeInputFiles(posts, jobBase)
	if err != nil {
		return nil, nil, err
	}
	defer os.Remove(catFile)
	defer os.Remove(sumFile)

	if err := s.objects.EnsureBucket(ctx, s.cfg.Bucket); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure bucket %s: %w", s.cfg.Bucket, err)
	}

	jobPrefix := s.cfg.Prefix + "/" + jobBase
	catKey := jobPrefix + "/" + filepath.Base(catFile)
	sumKey := jobPrefix + "/" + filepath.Base(sumFile)
	for path, key := range map[string]string{catFile: catKey, sumFile: sumKey} {
		if err := s.objects.Upload(ctx, path, s.cfg.Bucket, key); err != nil {
			return nil, nil, fmt.Errorf("failed to upload %s: %w", path, err)
		}
	}

	outputURI := fmt.Sprintf("s3://%s/%s/output/", s.cfg.Bucket, jobPrefix)
	catHandle, err := s.jobs.SubmitJob(ctx, fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, catKey), outputURI, jobBase+"_categorization", s.cfg.RoleARN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to submit categorization job: %w", err)
	}
	sumHandle, err := s.jobs.SubmitJob(ctx, fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, sumKey), outputURI, jobBase+"_summarization", s.cfg.RoleARN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to submit summarization job: %w", err)
	}

	// The two jobs are independent; monitor them concurrently and join
	// before looking at either result.
	var wg sync.WaitGroup
	var catOutcome, sumOutcome PollOutcome
	wg.Add(2)
	go func() {
		defer wg.Done()
		catOutcome = PollJob(ctx, s.jobs, catHandle, s.cfg.PollInterval, s.cfg.Deadline)
	}()
	go func() {
		defer wg.Done()
		sumOutcome = PollJob(ctx, s.jobs, sumHandle, s.cfg.PollInterval, s.cfg.Deadline)
	}()
	wg.Wait()

	if catOutcome != PollSucceeded || sumOutcome != PollSucceeded {
		return nil, nil, fmt.Errorf("batch inference did not complete: categorization=%s, summarization=%s",
			catOutcome, sumOutcome)
	}

	results, err := s.downloadResults(ctx, jobPrefix, catHandle, sumHandle, filepath.Base(catFile), filepath.Base(sumFile))
	if err != nil {
		return nil, nil, err
	}

	return mergeResults(posts, results)
}

// jobName derives a stable job-name base from the post set's date.
func (s *BatchStrategy) jobName(posts []blogwatch.PostRecord) string {
	ts := time.Now().Unix()
	if len(posts) > 0 {
		if t, err := time.Parse(blogwatch.DateLayout, posts[0].PublishedDate); err == nil {
			ts = t.Unix()
		}
	}
	return fmt.Sprintf("aws-news-batch-%d", ts)
}

// writeInputFiles produces the two JSONL job inputs from one post set.
func (s *BatchStrategy) writeInputFiles(posts []blogwatch.PostRecord, jobBase string) (catFile, sumFile string, err error) {
	catFile = filepath.Join(s.cfg.WorkDir, jobBase+"_categorization.jsonl")
	sumFile = filepath.Join(s.cfg.WorkDir, jobBase+"_summarization.jsonl")

	catRecords := make([]inferenceRecord, 0, len(posts))
	sumRecords := make([]inferenceRecord, 0, len(posts))
	for _, post := range posts {
		catRecords = append(catRecords, categorizationRecord(post))
		sumRecords = append(sumRecords, summarizationRecord(post))
	}

	if err := writeJSONL(catFile, catRecords); err != nil {
		return "", "", fmt.Errorf("failed to write categorization input: %w", err)
	}
	if err := writeJSONL(sumFile, sumRecords); err != nil {
		os.Remove(catFile)
		return "", "", fmt.Errorf("failed to write summarization input: %w", err)
	}
	return catFile, sumFile, nil
}

// categorizationRecord builds the prompt line asking for up to three
// categories from the closed set.
func categorizationRecord(post blogwatch.PostRecord) inferenceRecord {
	prompt := fmt.Sprintf(categorizationPrompt,
		strings.Join(serviceCategories, ", "),
		post.Title,
		clamp(post.Description, categoryDescriptionLimit),
	)
	return promptRecord(post.ID+categorySuffix, prompt, 100)
}

// summarizationRecord builds the prompt line asking for a short summary.
func summarizationRecord(post blogwatch.PostRecord) inferenceRecord {
	prompt := fmt.Sprintf(summarizationPrompt,
		post.Title,
		clamp(post.Description, summaryDescriptionLimit),
	)
	return promptRecord(post.ID+summarySuffix, prompt, 300)
}

func promptRecord(recordID, prompt string, maxTokens int) inferenceRecord {
	return inferenceRecord{
		RecordID: recordID,
		ModelInput: modelInput{
			SchemaVersion: "messages-v1",
			Messages: []message{{
				Role:    "user",
				Content: []messageContent{{Text: prompt}},
			}},
			InferenceConfig: inferenceConfig{
				MaxNewTokens: maxTokens,
				TopP:         0.9,
				TopK:         20,
				Temperature:  0,
			},
		},
	}
}

func clamp(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}

func writeJSONL(path string, records []inferenceRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// inferenceResult accumulates the per-post pieces parsed from the two
// output files.
type inferenceResult struct {
	categories []string
	summary    string
}

// downloadResults fetches and parses both job outputs, keyed by post ID.
// The provider writes each output under the job's ID with a ".out" suffix
// on the input filename.
func (s *BatchStrategy) downloadResults(ctx context.Context, jobPrefix, catHandle, sumHandle, catName, sumName string) (map[string]*inferenceResult, error) {
	results := make(map[string]*inferenceResult)

	catKey := fmt.Sprintf("%s/output/%s/%s.out", jobPrefix, jobID(catHandle), catName)
	catData, err := s.objects.Download(ctx, s.cfg.Bucket, catKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download categorization output: %w", err)
	}
	parseOutputLines(catData, categorySuffix, results, func(r *inferenceResult, text string) {
		for _, category := range strings.Split(text, ",") {
			if category = strings.TrimSpace(category); category != "" {
				r.categories = append(r.categories, category)
			}
		}
	})

	sumKey := fmt.Sprintf("%s/output/%s/%s.out", jobPrefix, jobID(sumHandle), sumName)
	sumData, err := s.objects.Download(ctx, s.cfg.Bucket, sumKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download summarization output: %w", err)
	}
	parseOutputLines(sumData, summarySuffix, results, func(r *inferenceResult, text string) {
		r.summary = strings.TrimSpace(text)
	})

	return results, nil
}

// jobID extracts the trailing identifier from a job handle (an ARN for the
// hosted service).
func jobID(handle string) string {
	if i := strings.LastIndex(handle, "/"); i >= 0 {
		return handle[i+1:]
	}
	return handle
}

// parseOutputLines walks one JSONL output, dispatching each record's text
// to apply. Unparseable lines and records without the expected suffix are
// skipped.
func parseOutputLines(data []byte, suffix string, results map[string]*inferenceResult, apply func(*inferenceResult, string)) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record outputRecord
		if err := json.Unmarshal(line, &record); err != nil {
			log.Warn().Err(err).Msg("Skipping unparseable output line")
			continue
		}
		postID, ok := strings.CutSuffix(record.RecordID, suffix)
		if !ok || postID == "" {
			continue
		}
		content := record.ModelOutput.Output.Message.Content
		if len(content) == 0 {
			continue
		}

		r := results[postID]
		if r == nil {
			r = &inferenceResult{}
			results[postID] = r
		}
		apply(r, content[0].Text)
	}
}

// mergeResults applies the parsed outputs back onto the original post set.
// A post absent from either output receives the corresponding fallback
// rather than being dropped.
func mergeResults(posts []blogwatch.PostRecord, results map[string]*inferenceResult) ([]blogwatch.PostRecord, []string, error) {
	used := make(map[string]struct{})
	updated := make([]blogwatch.PostRecord, 0, len(posts))

	for _, post := range posts {
		categories := []string{FallbackCategory}
		summary := FallbackSummary

		if r := results[post.ID]; r != nil {
			if len(r.categories) > 0 {
				categories = r.categories
			}
			if r.summary != "" {
				summary = r.summary
			}
		}

		post.Category = categories
		post.Summary = summary
		post.Processed = true
		for _, category := range categories {
			used[category] = struct{}{}
		}
		updated = append(updated, post)
	}

	categories := make([]string, 0, len(used))
	for category := range used {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	return updated, categories, nil
}
