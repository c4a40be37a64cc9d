package config

import "fmt"

const (
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
	// ProviderNone keeps the service running while every run fails as not configured.
	ProviderNone = "none"

	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultModel         = "google/gemini-flash-1.5"
)

// SummarizerConfig 摘要服务配置
type SummarizerConfig struct {
	Provider string       `yaml:"provider"`
	APIKey   string       `yaml:"apiKey"`
	BaseURL  string       `yaml:"baseURL"`
	Model    string       `yaml:"model"`
	SiteURL  string       `yaml:"siteURL"`
	AppName  string       `yaml:"appName"`
	Vertex   VertexConfig `yaml:"vertex"`
}

type VertexConfig struct {
	ProjectID string `yaml:"projectID"`
	Region    string `yaml:"region"`
	Model     string `yaml:"model"`
}

func (c *SummarizerConfig) applyEnv() {
	setString(&c.Provider, "AI_PROVIDER")
	setString(&c.APIKey, "AI_API_KEY")
	setString(&c.BaseURL, "AI_BASE_URL")
	setString(&c.Model, "AI_MODEL")
	setString(&c.SiteURL, "CLIENT_URL")
	setString(&c.Vertex.ProjectID, "GCP_PROJECT_ID")
	setString(&c.Vertex.Region, "GCP_REGION")
	setString(&c.Vertex.Model, "VERTEX_MODEL")
}

func (c *SummarizerConfig) validate() error {
	switch c.Provider {
	case ProviderNone:
		return nil
	case ProviderOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("summarizer.apiKey is required for provider %q", c.Provider)
		}
		if c.Model == "" {
			return fmt.Errorf("summarizer.model is required")
		}
		return nil
	case ProviderVertex:
		if c.Vertex.ProjectID == "" || c.Vertex.Region == "" || c.Vertex.Model == "" {
			return fmt.Errorf("summarizer.vertex requires projectID, region and model")
		}
		return nil
	default:
		return fmt.Errorf("unsupported summarizer provider: %q", c.Provider)
	}
}
