package image

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// textractAPI is the slice of the Textract client this package calls.
type textractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractRecognizer runs OCR through AWS Textract.
type TextractRecognizer struct {
	client        textractAPI
	logger        logger.Logger
	minConfidence float32
}

type TextractConfig struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

func NewTextractRecognizer(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractRecognizer, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	// load aws config
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &TextractRecognizer{
		client:        client,
		logger:        log.Named("textract"),
		minConfidence: cfg.MinConfidence,
	}, nil
}

func (r *TextractRecognizer) Name() string {
	return "textract"
}

// Recognize ignores language; Textract detects it.
func (r *TextractRecognizer) Recognize(ctx context.Context, imagePath, _ string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	result, err := r.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return "", fmt.Errorf("failed to detect document text: %w", err)
	}

	lines := r.processBlocks(result.Blocks)
	r.logger.Debug("Textract finished", logger.Int("lines", len(lines)))
	return strings.Join(lines, "\n"), nil
}

// processBlocks keeps LINE blocks above the confidence floor, in reading order.
func (r *TextractRecognizer) processBlocks(blocks []types.Block) []string {
	var lines []string
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < r.minConfidence {
			continue
		}
		lines = append(lines, *block.Text)
	}
	return lines
}

func (r *TextractRecognizer) Close() error {
	return nil
}
