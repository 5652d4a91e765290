package domain

// StageResult carries either the decoded payload of one scan stage or the
// user-readable errors that stopped it. A stage with errors never has data.
type StageResult struct {
	Errors []string               `json:"errors,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Failed reports whether the stage recorded any error.
func (r *StageResult) Failed() bool {
	return r != nil && len(r.Errors) > 0
}

// LocalStatus describes the scanning server's own relationship with the
// remote library.
type LocalStatus struct {
	Following        bool `json:"following"`
	AwaitingApproval bool `json:"awaiting_approval"`
}

// ScanReport is the per-stage outcome of a remote library scan. Stages
// short-circuit: a nil stage was never reached. Partial success is a
// reportable result, not an error.
type ScanReport struct {
	Local     LocalStatus  `json:"local"`
	Webfinger *StageResult `json:"webfinger,omitempty"`
	Actor     *StageResult `json:"actor,omitempty"`
	Library   *StageResult `json:"library,omitempty"`
	FirstPage *StageResult `json:"first_page,omitempty"`
}
