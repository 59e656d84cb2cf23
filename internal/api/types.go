package api

import "encoding/json"

// Message is one conversation turn sent as context with a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the fixed wire contract of POST /chat. The schema is not
// negotiated with the backend: a response that does not match ChatResponse
// is a contract violation, not a reason to retry with another shape.
type ChatRequest struct {
	Messages   []Message `json:"messages"`
	UseRAG     bool      `json:"use_rag"`
	MaxResults int       `json:"max_results"`
	SessionID  string    `json:"session_id"`
	Mode       string    `json:"mode,omitempty"`
}

type ChatResponse struct {
	Response    string            `json:"response"`
	Sources     []Source          `json:"sources,omitempty"`
	Images      []ImageAttachment `json:"images,omitempty"`
	Entities    []Entity          `json:"entities,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	ModelUsed   string            `json:"model_used,omitempty"`
	IsComplaint bool              `json:"is_complaint,omitempty"`
}

// Source is a retrieval result returned alongside a generated answer.
// All fields besides Title are optional.
type Source struct {
	Title          string   `json:"title"`
	Type           string   `json:"type,omitempty"`
	Section        string   `json:"section,omitempty"`
	ContentPreview string   `json:"content_preview,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	PageNumber     int      `json:"page_number,omitempty"`
	Score          float64  `json:"score,omitempty"`
	DriveFileID    string   `json:"drive_file_id,omitempty"`
}

// ImageAttachment carries inline base64-encoded image data extracted from a
// source document.
type ImageAttachment struct {
	ImageData   string `json:"image_data"`
	MimeType    string `json:"mime_type,omitempty"`
	Description string `json:"description,omitempty"`
	PageNumber  int    `json:"page_number,omitempty"`
}

// Entity accepts either a bare string or an object exposing a text/name
// field; the backend has emitted both over time.
type Entity struct {
	Text string
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Text = s
		return nil
	}
	var obj struct {
		Text string `json:"text"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Text = obj.Text
	if e.Text == "" {
		e.Text = obj.Name
	}
	return nil
}

func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Text)
}

type FeedbackRequest struct {
	MessageID string `json:"message_id"`
	Rating    int    `json:"rating"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Comment   string `json:"comment,omitempty"`
}

type documentURLRequest struct {
	Filename string `json:"filename"`
}

type documentURLResponse struct {
	DriveFileID string `json:"drive_file_id"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
