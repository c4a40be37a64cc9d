package text

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// Processor reads plain-text formats. UTF-8 and BOM-marked UTF-16 are
// decoded as such; anything else is taken as Windows-1252.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{logger: log.Named("text")}
}

func (p *Processor) Family() models.FileFamily {
	return models.FamilyText
}

func (p *Processor) Process(ctx context.Context, path string) ([]models.DocumentChunk, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content, encoding, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode text: %w", err)
	}
	if encoding != "utf-8" {
		p.logger.Debug("Decoded non UTF-8 text", logger.String("encoding", encoding))
	}

	return []models.DocumentChunk{{
		Content:  content,
		Metadata: map[string]interface{}{"encoding": encoding},
	}}, nil
}

func decode(raw []byte) (string, string, error) {
	// BOMOverride strips a UTF-8 BOM and switches to UTF-16 when one is present
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, raw)
	if err == nil && utf8.Valid(out) && !hasReplacement(raw, out) {
		return string(out), "utf-8", nil
	}

	out, _, err = transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
	if err != nil {
		return "", "", err
	}
	return string(out), "windows-1252", nil
}

// hasReplacement reports whether decoding introduced U+FFFD for invalid input.
func hasReplacement(raw, out []byte) bool {
	return !utf8.Valid(raw) && utf8.Valid(out) && !startsWithUTF16BOM(raw)
}

func startsWithUTF16BOM(raw []byte) bool {
	return len(raw) >= 2 && ((raw[0] == 0xFF && raw[1] == 0xFE) || (raw[0] == 0xFE && raw[1] == 0xFF))
}

func (p *Processor) Close() error {
	return nil
}
