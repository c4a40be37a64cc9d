package models

import (
	"path/filepath"
	"strings"
	"time"
)

// SummaryStatus 摘要状态
type SummaryStatus string

const (
	StatusNone      SummaryStatus = "none"
	StatusPending   SummaryStatus = "pending"
	StatusCompleted SummaryStatus = "completed"
	StatusFailed    SummaryStatus = "failed"
)

// FailureKind classifies why the last run failed. Only transient
// failures are picked up again by the read path.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureConfiguration FailureKind = "configuration"
	FailureContent       FailureKind = "content"
	FailureTransient     FailureKind = "transient"
)

// Document 文档记录
type Document struct {
	ID               string        `json:"id" gorm:"type:varchar(64);primaryKey"`
	Title            string        `json:"title"`
	FileName         string        `json:"fileName"`
	FileSize         int64         `json:"fileSize"`
	StorageReference string        `json:"storageReference"`
	DeclaredMimeType string        `json:"declaredMimeType,omitempty"`
	SummaryStatus    SummaryStatus `json:"summaryStatus" gorm:"type:varchar(16);index;default:none"`
	Summary          string        `json:"summary" gorm:"type:text"`
	SummaryError     string        `json:"summaryError,omitempty" gorm:"type:text"`
	FailureKind      FailureKind   `json:"failureKind,omitempty" gorm:"type:varchar(16)"`
	RetryCount       int           `json:"retryCount" gorm:"not null;default:0"`
	SummaryUpdatedAt time.Time     `json:"summaryUpdatedAt" gorm:"index"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

func (Document) TableName() string {
	return "documents"
}

// Clone returns a copy that shares no state with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// SummaryState is the polling view of a document.
type SummaryState struct {
	ID               string        `json:"id"`
	SummaryStatus    SummaryStatus `json:"summaryStatus"`
	Summary          string        `json:"summary"`
	SummaryError     string        `json:"summaryError,omitempty"`
	RetryCount       int           `json:"retryCount"`
	SummaryUpdatedAt time.Time     `json:"summaryUpdatedAt"`
}

func (d *Document) State() *SummaryState {
	return &SummaryState{
		ID:               d.ID,
		SummaryStatus:    d.SummaryStatus,
		Summary:          d.Summary,
		SummaryError:     d.SummaryError,
		RetryCount:       d.RetryCount,
		SummaryUpdatedAt: d.SummaryUpdatedAt,
	}
}

// NameHint is the best-known file name for extension inference.
func (d *Document) NameHint() string {
	if d.FileName != "" {
		return d.FileName
	}
	return d.Title
}

// DocumentChunk 文档块
type DocumentChunk struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// FileFamily 文件类别
type FileFamily string

const (
	FamilyUnknown FileFamily = ""
	FamilyPDF     FileFamily = "pdf"
	FamilyDOCX    FileFamily = "docx"
	FamilyImage   FileFamily = "image"
	FamilyText    FileFamily = "text"
)

var extensionFamilies = map[string]FileFamily{
	".pdf":  FamilyPDF,
	".docx": FamilyDOCX,
	".png":  FamilyImage,
	".jpg":  FamilyImage,
	".jpeg": FamilyImage,
	".bmp":  FamilyImage,
	".webp": FamilyImage,
	".tif":  FamilyImage,
	".tiff": FamilyImage,
	".txt":  FamilyText,
	".md":   FamilyText,
	".json": FamilyText,
	".js":   FamilyText,
	".html": FamilyText,
	".css":  FamilyText,
	".xml":  FamilyText,
	".csv":  FamilyText,
	".log":  FamilyText,
	".yaml": FamilyText,
	".yml":  FamilyText,
}

// FamilyForExtension maps a dotted, case-insensitive extension to its family.
func FamilyForExtension(ext string) FileFamily {
	return extensionFamilies[strings.ToLower(ext)]
}

// FamilyForName maps the extension of name to its family.
func FamilyForName(name string) FileFamily {
	return FamilyForExtension(filepath.Ext(name))
}

// SupportedExtensions lists every extension with a known family.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionFamilies))
	for ext := range extensionFamilies {
		exts = append(exts, ext)
	}
	return exts
}

// ExtractionOutcome 提取结果类型
type ExtractionOutcome string

const (
	OutcomeText    ExtractionOutcome = "text"
	OutcomeScanned ExtractionOutcome = "scanned"
	OutcomeError   ExtractionOutcome = "error"
)

// ExtractionResult is what the router hands back for one file.
type ExtractionResult struct {
	Outcome ExtractionOutcome
	Family  FileFamily
	Text    string
	Err     error
}
