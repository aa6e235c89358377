package categorize

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"github.com/rs/zerolog/log"

	"github.com/suoware/blogwatch"
)

// BedrockJobService runs batch inference as Bedrock model-invocation jobs.
// Job handles are the job ARNs.
type BedrockJobService struct {
	client  *bedrock.Client
	modelID string
}

// NewBedrockJobService creates the service for one model.
func NewBedrockJobService(client *bedrock.Client, modelID string) *BedrockJobService {
	return &BedrockJobService{client: client, modelID: modelID}
}

// SubmitJob implements blogwatch.InferenceJobService.
func (s *BedrockJobService) SubmitJob(ctx context.Context, inputURI, outputURI, jobName, roleRef string) (string, error) {
	out, err := s.client.CreateModelInvocationJob(ctx, &bedrock.CreateModelInvocationJobInput{
		JobName: aws.String(jobName),
		ModelId: aws.String(s.modelID),
		RoleArn: aws.String(roleRef),
		InputDataConfig: &types.ModelInvocationJobInputDataConfigMemberS3InputDataConfig{
			Value: types.ModelInvocationJobS3InputDataConfig{
				S3Uri: aws.String(inputURI),
			},
		},
		OutputDataConfig: &types.ModelInvocationJobOutputDataConfigMemberS3OutputDataConfig{
			Value: types.ModelInvocationJobS3OutputDataConfig{
				S3Uri: aws.String(outputURI),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create model invocation job %s: %w", jobName, err)
	}

	log.Info().Str("job", aws.ToString(out.JobArn)).Msg("Submitted batch job")
	return aws.ToString(out.JobArn), nil
}

// GetJobStatus implements blogwatch.InferenceJobService.
func (s *BedrockJobService) GetJobStatus(ctx context.Context, handle string) (blogwatch.JobStatus, error) {
	out, err := s.client.GetModelInvocationJob(ctx, &bedrock.GetModelInvocationJobInput{
		JobIdentifier: aws.String(handle),
	})
	if err != nil {
		return blogwatch.JobStatusUnknown, fmt.Errorf("failed to get job %s: %w", handle, err)
	}

	switch out.Status {
	case types.ModelInvocationJobStatusSubmitted, types.ModelInvocationJobStatusValidating, types.ModelInvocationJobStatusScheduled:
		return blogwatch.JobStatusSubmitted, nil
	case types.ModelInvocationJobStatusInProgress, types.ModelInvocationJobStatusPartiallyCompleted:
		return blogwatch.JobStatusInProgress, nil
	case types.ModelInvocationJobStatusCompleted:
		return blogwatch.JobStatusCompleted, nil
	case types.ModelInvocationJobStatusFailed, types.ModelInvocationJobStatusExpired:
		return blogwatch.JobStatusFailed, nil
	case types.ModelInvocationJobStatusStopped, types.ModelInvocationJobStatusStopping:
		return blogwatch.JobStatusStopped, nil
	default:
		return blogwatch.JobStatusUnknown, nil
	}
}
