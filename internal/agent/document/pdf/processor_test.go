package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/internal/testutil"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

func TestProcessExtractsPagesInOrder(t *testing.T) {
	first := testutil.Sentence(120)
	path := testutil.WriteFile(t, "report.pdf", testutil.BuildPDF(first, "Second page text"))

	chunks, err := NewProcessor(logger.NewTestLogger(), 0).Process(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0].Content, "quarterly report")
	assert.Equal(t, 1, chunks[0].Metadata["page"])
	assert.Contains(t, chunks[1].Content, "Second page")
	assert.Equal(t, 2, chunks[1].Metadata["page"])
}

func TestProcessReportsScannedWhenTextIsShort(t *testing.T) {
	path := testutil.WriteFile(t, "scan.pdf", testutil.BuildPDF("", "p. 2"))

	_, err := NewProcessor(logger.NewTestLogger(), 0).Process(context.Background(), path)
	assert.ErrorIs(t, err, models.ErrScanned)
}

func TestProcessRejectsGarbage(t *testing.T) {
	path := testutil.WriteFile(t, "broken.pdf", []byte("this is not a pdf"))

	_, err := NewProcessor(logger.NewTestLogger(), 0).Process(context.Background(), path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrScanned)
}

func TestScannedThresholdIsConfigurable(t *testing.T) {
	path := testutil.WriteFile(t, "short.pdf", testutil.BuildPDF("Just twenty chars ok"))

	chunks, err := NewProcessor(logger.NewTestLogger(), 10).Process(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestProcessReportsPasswordProtectedPDF(t *testing.T) {
	locked := testutil.EncryptPDF(t, testutil.BuildPDF(testutil.Sentence(200)), "open-sesame")
	path := testutil.WriteFile(t, "locked.pdf", locked)

	_, err := NewProcessor(logger.NewTestLogger(), 0).Process(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEncryptedPDF)
	assert.NotErrorIs(t, err, models.ErrScanned)
}

func TestProcessSeparatesBrokenFromEncrypted(t *testing.T) {
	path := testutil.WriteFile(t, "broken.pdf", []byte("%PDF-1.4\nthis is not a pdf body"))

	_, err := NewProcessor(logger.NewTestLogger(), 0).Process(context.Background(), path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrEncryptedPDF)
}

func TestScannedErrorCarriesPageEvidence(t *testing.T) {
	path := testutil.WriteFile(t, "scan.pdf", testutil.BuildPDF("", ""))

	_, err := NewProcessor(logger.NewTestLogger(), 0).Process(context.Background(), path)
	require.ErrorIs(t, err, models.ErrScanned)
	assert.Contains(t, err.Error(), "across 2 pages, 0 of them image-only")
}
