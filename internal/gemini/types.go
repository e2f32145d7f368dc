package gemini

// GenerateRequest is the body of a generateContent call.
type GenerateRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one turn of the conversation.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is either text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData carries base64-encoded bytes of the given MIME type.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// GenerationConfig holds the sampling parameters.
type GenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
}

// DefaultGenerationConfig matches the settings the analyzer has always used.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{MaxOutputTokens: 2048, Temperature: 0.7, TopP: 0.8, TopK: 40}
}

// GenerateResponse is the subset of the response that is read.
type GenerateResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

// Candidate is one generated answer.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// PromptFeedback reports why a prompt was rejected.
type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// TextPart is a convenience constructor.
func TextPart(s string) Part { return Part{Text: s} }

// ImagePart wraps base64 image data.
func ImagePart(mimeType, b64 string) Part {
	return Part{InlineData: &InlineData{MIMEType: mimeType, Data: b64}}
}
