package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// labelScanPrompt is the shared prompt used by all LLM providers for reading labels
const labelScanPrompt = `You are reading a photo of a food package. Transcribe every piece of printed text you can see, paying particular attention to the ingredient list.

Return ONLY valid JSON in this exact format:
{
  "text": "all text exactly as printed"
}

Important:
- Keep the original wording and spelling, do not summarize or translate
- Separate lines with a newline character
- If no text is readable, use an empty string
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// transcript is the JSON reply requested by labelScanPrompt
type transcript struct {
	Text string `json:"text"`
}

// parseTranscript extracts the text field from a model reply
func parseTranscript(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Models sometimes add prose around the object
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var t transcript
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return "", fmt.Errorf("unmarshaling json: %w", err)
	}

	return strings.TrimSpace(t.Text), nil
}
