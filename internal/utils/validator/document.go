// internal/utils/validator/document.go
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize int64 // 最大文件大小（字节）
	// AllowedExtensions defaults to every extension with a known family.
	AllowedExtensions []string
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string            `json:"filename"`
	Size      int64             `json:"size"`
	MimeType  string            `json:"mimeType"`
	Extension string            `json:"extension"`
	Family    models.FileFamily `json:"family"`
	Hash      string            `json:"hash"`
}

// Message joins the error messages of an invalid result.
func (r *ValidationResult) Message() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{}
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = 10 * 1024 * 1024 // 10MB
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = models.SupportedExtensions()
	}

	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// ValidateFile 验证单个文件
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  file.Filename,
			Size:      file.Size,
			Extension: ext,
			Family:    models.FamilyForExtension(ext),
		},
	}

	// 基本验证
	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	// 打开文件
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// 检测MIME类型
	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = detected.String()

	if errs := v.validateMimeType(result.FileInfo.Family, detected); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
	}

	// 计算文件哈希
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}
	hash, err := calculateHash(f)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	if !result.IsValid {
		v.logger.Debug("File rejected",
			logger.String("filename", file.Filename),
			logger.String("mimeType", result.FileInfo.MimeType),
		)
	}
	return result, nil
}

// ValidateFiles 批量验证文件
func (v *DocumentValidator) ValidateFiles(files []*multipart.FileHeader) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(files))

	var g errgroup.Group
	g.SetLimit(4)
	for i, file := range files {
		g.Go(func() error {
			result, err := v.ValidateFile(file)
			if err != nil {
				return fmt.Errorf("%s: %w", file.Filename, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// 基本验证
func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errors []ValidationError

	// 检查文件大小
	if info.Size > v.config.MaxFileSize {
		errors = append(errors, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	// 检查文件扩展名
	if !v.allowed(info.Extension) || info.Family == models.FamilyUnknown {
		errors = append(errors, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %s is not allowed", displayExt(info.Extension)),
			Field:   "extension",
		})
	}

	return errors
}

func (v *DocumentValidator) allowed(ext string) bool {
	for _, e := range v.config.AllowedExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// MIME类型验证: the sniffed content must belong to the extension's family.
func (v *DocumentValidator) validateMimeType(family models.FileFamily, detected *mimetype.MIME) []ValidationError {
	ok := false
	switch family {
	case models.FamilyPDF:
		ok = detected.Is("application/pdf")
	case models.FamilyDOCX:
		ok = detected.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document") ||
			detected.Is("application/zip")
	case models.FamilyImage:
		ok = strings.HasPrefix(detected.String(), "image/")
	case models.FamilyText:
		ok = descendsFrom(detected, "text/plain")
	}
	if ok {
		return nil
	}

	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("Content type %s does not match a %s file", detected.String(), family),
		Field:   "mimeType",
	}}
}

func descendsFrom(m *mimetype.MIME, parent string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(parent) {
			return true
		}
	}
	return false
}

func displayExt(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}

// 计算文件哈希
func calculateHash(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
