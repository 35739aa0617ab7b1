package ai

import (
	"github.com/pkoukk/tiktoken-go"

	"ai-chat-client/internal/domain/ports/adapter"
)

// countTokensBPE estimates prompt tokens with tiktoken. Unknown models fall
// back to cl100k_base; the small per-message constant follows the OpenAI
// chat-format accounting.
func countTokensBPE(model string, messages []adapter.Message) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	total := 2
	for _, m := range messages {
		total += len(enc.Encode(m.Content, nil, nil)) + 4
	}
	return total, nil
}
