package llm

import (
	"context"
	"fmt"
	"strings"

	"cv-smart-go/internal/config"

	"cloud.google.com/go/vertexai/genai"
)

// SystemPrompt 是所有简历抽取请求共用的系统指令。
const SystemPrompt = "You are a precise CV parser. You always answer with a single valid JSON object and nothing else."

const defaultVertexModel = "gemini-1.5-flash-002"

// VertexGenerator 通过 Vertex AI 调用 Gemini。
type VertexGenerator struct {
	model      *genai.GenerativeModel
	modelName  string
	baseClient *genai.Client
}

// NewVertexGenerator 创建一个预配置好的 Gemini 模型。
func NewVertexGenerator(ctx context.Context, cfg config.LLMConfig) (*VertexGenerator, error) {
	if cfg.Vertex.ProjectID == "" || cfg.Vertex.Region == "" {
		return nil, fmt.Errorf("NewVertexGenerator: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, cfg.Vertex.ProjectID, cfg.Vertex.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	name := cfg.Model
	if name == "" || !strings.HasPrefix(name, "gemini") {
		name = defaultVertexModel
	}
	model := baseClient.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
	}
	if cfg.Generation.Temperature != 0 {
		model.GenerationConfig.Temperature = genai.Ptr[float32](float32(cfg.Generation.Temperature))
	}
	if cfg.Generation.TopP != 0 {
		model.GenerationConfig.TopP = genai.Ptr[float32](float32(cfg.Generation.TopP))
	}
	if cfg.Generation.MaxTokens != 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr[int32](int32(cfg.Generation.MaxTokens))
	}

	return &VertexGenerator{model: model, modelName: name, baseClient: baseClient}, nil
}

func (g *VertexGenerator) Name() string { return g.modelName }

// Generate 发送 prompt 并拼接第一个候选中的全部文本片段。
func (g *VertexGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func (g *VertexGenerator) Close() error {
	if g.baseClient != nil {
		return g.baseClient.Close()
	}
	return nil
}
