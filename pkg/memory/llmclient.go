package memory

import (
	"os"

	"github.com/jg-phare/memoryd/pkg/llm"
)

// NewLLMClient builds the shared llm.Client the Extractor and Validator
// call into, from the same LiteLLM-proxy-style env vars the teacher's
// cmd/example uses for its own provider resolution, scoped to this
// pipeline's own keys so the two don't collide in a shared environment.
// Returns nil if no base URL is configured — callers degrade to the
// documented fallback paths (tail sampling, zero warnings) rather than
// failing (§4.7, §4.13).
func NewLLMClient(model string) llm.Client {
	baseURL := os.Getenv("MEMORY_LLM_BASE_URL")
	if baseURL == "" {
		return nil
	}
	return llm.NewClient(llm.ClientConfig{
		BaseURL: baseURL,
		APIKey:  os.Getenv("MEMORY_LLM_API_KEY"),
		Model:   model,
	})
}
