package ocr

// Result is the recognized text of a document
type Result struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
}

// ocrRequest is the body of POST /v1/ocr
type ocrRequest struct {
	Model    string      `json:"model"`
	Document documentRef `json:"document"`
}

// documentRef points at the document as a data URL. Exactly one of the
// URL fields is set, matching Type.
type documentRef struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// ocrResponse is the subset of the OCR response used here
type ocrResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

// errorResponse covers the error body shapes the API returns
type errorResponse struct {
	Message string `json:"message"`
	Detail  any    `json:"detail"`
	Error   any    `json:"error"`
}
