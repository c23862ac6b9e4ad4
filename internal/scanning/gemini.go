package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements TextRecognizer using Google Gemini as a remote OCR engine
type Gemini struct {
	apiKey    string
	modelName string
	logger    *slog.Logger
}

// NewGemini creates a new Gemini recognizer
func NewGemini(apiKey string, modelName string, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gemini{
		apiKey:    apiKey,
		modelName: modelName,
		logger:    logger,
	}, nil
}

// Recognize transcribes the page. A client is opened for this call only.
func (g *Gemini) Recognize(ctx context.Context, page *Artifact) (string, error) {
	defer releasePage(page, g.logger)

	imageData, err := os.ReadFile(page.Path)
	if err != nil {
		return "", fmt.Errorf("reading page image: %w", err)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.modelName)

	// genai.ImageData expects just the format suffix, not the full MIME type
	resp, err := model.GenerateContent(ctx,
		genai.ImageData("png", imageData),
		genai.Text(transcribePrompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return NormalizeText(stripCodeFence(responseText.String())), nil
}
