package model

import "encoding/json"

// UploadAttachment is an image encoded for the prediction backend.
type UploadAttachment struct {
	FileName string
	MimeType string
	DataURI  string
}

// MarshalJSON renders the attachment in the backend's uploads schema.
func (attachment UploadAttachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Name string `json:"name"`
		Data string `json:"data"`
		Mime string `json:"mime"`
	}{
		Type: "file",
		Name: attachment.FileName,
		Data: attachment.DataURI,
		Mime: attachment.MimeType,
	})
}

// PredictionRequest is one conversation turn forwarded to the backend.
type PredictionRequest struct {
	Question  string
	Uploads   []UploadAttachment
	SessionID string
}

// MarshalJSON renders the request as the backend prediction payload.
func (request PredictionRequest) MarshalJSON() ([]byte, error) {
	uploads := request.Uploads
	if uploads == nil {
		uploads = []UploadAttachment{}
	}
	return json.Marshal(struct {
		Question       string             `json:"question"`
		Uploads        []UploadAttachment `json:"uploads"`
		OverrideConfig overrideConfig     `json:"overrideConfig"`
	}{
		Question:       request.Question,
		Uploads:        uploads,
		OverrideConfig: overrideConfig{SessionID: request.SessionID},
	})
}

type overrideConfig struct {
	SessionID string `json:"sessionId"`
}

// PredictionResponse is the normalized reply returned to relay callers.
type PredictionResponse struct {
	Success bool            `json:"success"`
	Answer  any             `json:"answer"`
	Raw     json.RawMessage `json:"raw"`

	// StatusCode is the backend HTTP status.
	StatusCode int    `json:"-"`
	SessionID  string `json:"-"`
}
