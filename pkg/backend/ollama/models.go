package ollama

import (
	"context"
	"net/http"

	"github.com/papercomputeco/canvas/pkg/dispatch"
)

const tagsPath = "/api/tags"

// FallbackModels are offered when the Ollama server cannot be asked or has
// no models pulled.
var FallbackModels = []string{"llama3", "llama2", "mistral", "qwen2.5", "llama3.2"}

// tagsResponse is the /api/tags body listing locally pulled models.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models asks the Ollama server which models are pulled. Any failure falls
// back to FallbackModels, so the error is always nil.
func (b *Backend) Models(ctx context.Context) ([]string, error) {
	if b.transport == nil {
		return fallback(), nil
	}

	result, err := b.transport.Submit(ctx, dispatch.Request{
		Method: http.MethodGet,
		Target: tagsPath,
	})
	if err != nil {
		return fallback(), nil
	}

	var tags tagsResponse
	if err := result.Decode(&tags); err != nil {
		return fallback(), nil
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	if len(names) == 0 {
		return fallback(), nil
	}
	return names, nil
}

func fallback() []string {
	return append([]string(nil), FallbackModels...)
}
