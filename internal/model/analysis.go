package model

// Analysis holds the structured language-analysis findings. Mistakes,
// Inaccuracies and Vocabularies are the required provider fields; a
// response missing any of them is rejected at the adapter boundary.
type Analysis struct {
	Mistakes       []ErrorCorrection `json:"mistakes"`
	Inaccuracies   []ErrorCorrection `json:"inaccuracies"`
	Vocabularies   []Vocabulary      `json:"vocabularies"`
	PhoneticIssues []PhoneticIssue   `json:"phonetic_issues,omitempty"`
}

func (a Analysis) clone() Analysis {
	return Analysis{
		Mistakes:       append([]ErrorCorrection(nil), a.Mistakes...),
		Inaccuracies:   append([]ErrorCorrection(nil), a.Inaccuracies...),
		Vocabularies:   append([]Vocabulary(nil), a.Vocabularies...),
		PhoneticIssues: append([]PhoneticIssue(nil), a.PhoneticIssues...),
	}
}

// ErrorCorrection is one flagged finding. Quote is an exact substring of
// the transcript so the client can highlight it; Span, when present, is
// the [start, end) byte range of that quote.
type ErrorCorrection struct {
	Quote      string  `json:"quote"`
	ErrorType  string  `json:"error_type"`
	Correction string  `json:"correction"`
	Span       *[2]int `json:"span,omitempty"`
}

// Vocabulary suggests richer alternatives for an overused word or phrase.
type Vocabulary struct {
	Quote    string   `json:"quote"`
	Synonyms []string `json:"synonyms"`
}

// PhoneticIssue flags a phoneme the speaker struggled with.
type PhoneticIssue struct {
	Phoneme string `json:"phoneme"`
	Hint    string `json:"hint"`
}
