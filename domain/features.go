package domain

// TextFeatures are cheap surface statistics over one raw input. They feed the
// verbose CLI view and debugging; the model never sees them.
type TextFeatures struct {
	Length           int     `json:"length"`
	WordCount        int     `json:"word_count"`
	CapsRatio        float64 `json:"caps_ratio"`
	ExclamationCount int     `json:"exclamation_count"`
	QuestionCount    int     `json:"question_count"`
	HasURL           bool    `json:"has_url"`
}
