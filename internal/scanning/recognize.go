package scanning

import "strings"

// transcribePrompt is shared by the LLM-backed recognizers. They act as plain
// OCR engines here; field extraction stays in ParseReceiptText.
const transcribePrompt = `Transcribe all text visible in this receipt image exactly as printed.

Rules:
- Keep the original line breaks and reading order, top to bottom
- Do not summarize, translate, correct or reformat anything
- Do not add any text of your own, no explanations and no markdown
- If no text is visible, return an empty response`

// NormalizeText converts recognized text to "\n" line endings and trims it
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// stripCodeFence removes a markdown fence some models wrap their reply in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
