package services

import "attendify-backend/internal/models"

// Decision is the synchronous outcome of the pipeline for one attempt. When
// Enqueue is set the verdict is left empty and the submission stays Pending.
type Decision struct {
	Enqueue bool
	Verdict models.Verdict
}

// Pipeline runs hard filters, then the keyword gate, then decides whether the
// attempt needs semantic verification.
type Pipeline struct {
	filter *HardFilter
}

func NewPipeline(filter *HardFilter) *Pipeline {
	if filter == nil {
		filter = NewHardFilter(nil)
	}
	return &Pipeline{filter: filter}
}

func (p *Pipeline) Evaluate(session *models.AttendanceSession, answer string) Decision {
	if reason := p.filter.Check(answer); reason != "" {
		return Decision{Verdict: models.Verdict{
			Status: models.SubmissionRejected,
			Method: models.MethodHardFilter,
			Reason: reason,
		}}
	}

	keywordMatched := false
	if session.HasKeywords() {
		keywordMatched = MatchKeyword(answer, session.Keywords)
		if !keywordMatched {
			return Decision{Verdict: models.Verdict{
				Status: models.SubmissionRejected,
				Method: models.MethodKeywordMissing,
				Reason: models.ReasonKeywordMissing,
			}}
		}
	}

	if session.SemanticEnabled {
		return Decision{Enqueue: true}
	}

	if keywordMatched {
		return Decision{Verdict: models.Verdict{
			Status:     models.SubmissionApproved,
			Method:     models.MethodKeywordOnly,
			Confidence: 1,
		}}
	}

	// No keywords and no semantic stage: passing the hard filters is the whole check.
	return Decision{Verdict: models.Verdict{
		Status: models.SubmissionApproved,
		Method: models.MethodFilterOnly,
	}}
}
