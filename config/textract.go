package config

import "fmt"

const (
	OCREngineTesseract = "tesseract"
	OCREngineTextract  = "textract"
)

// OCRConfig selects the engine used for image documents.
type OCRConfig struct {
	Engine   string         `yaml:"engine"`
	Language string         `yaml:"language"`
	Textract TextractConfig `yaml:"textract"`
}

type TextractConfig struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

func (c *OCRConfig) applyEnv() {
	setString(&c.Engine, "OCR_ENGINE")
	setString(&c.Language, "OCR_LANGUAGE")
	setString(&c.Textract.Region, "AWS_REGION")
	setString(&c.Textract.Endpoint, "AWS_TEXTRACT_ENDPOINT")
	setString(&c.Textract.AccessKey, "AWS_ACCESS_KEY")
	setString(&c.Textract.SecretKey, "AWS_SECRET_KEY")
}

func (c *OCRConfig) validate() error {
	switch c.Engine {
	case OCREngineTesseract:
		return nil
	case OCREngineTextract:
		if c.Textract.Region == "" {
			return fmt.Errorf("ocr.textract.region is required")
		}
		return nil
	default:
		return fmt.Errorf("unsupported ocr engine: %q", c.Engine)
	}
}
