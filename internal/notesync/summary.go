package notesync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/summarize"
)

// ErrSummarizerDisabled is returned when no summarizer is configured.
var ErrSummarizerDisabled = errors.New("summarizer is not configured")

// SummaryRequest asks for a summary of a note. Content overrides the stored
// note content when set; Prompt replaces the default instruction when non-empty.
type SummaryRequest struct {
	Content *string `json:"content"`
	Prompt  string  `json:"prompt"`
}

// SummaryOutcome is the result of GenerateSummary. Generated is false when
// the model returned no text; nothing is persisted in that case.
type SummaryOutcome struct {
	summarize.Result
	Generated bool        `json:"generated"`
	Note      models.Note `json:"note"`
}

// GenerateSummary summarizes a note and writes the summary back to it. The
// note is loaded first even when req.Content overrides its text. The write
// happens only after generation succeeded; if it fails the returned
// *apperr.SummaryPersistError carries the generated text. Neither step is
// retried.
func (c *Coordinator) GenerateSummary(ctx context.Context, noteID string, req SummaryRequest) (SummaryOutcome, error) {
	var out SummaryOutcome
	err := c.mutate(ctx, OpSummarize, func() (Change, any, error) {
		if c.summarizer == nil {
			return Change{}, nil, &apperr.SummarizationError{Err: ErrSummarizerDisabled}
		}

		// Existence and ownership are checked before the model is paid for.
		n, err := c.dal.GetNote(ctx, noteID)
		if err != nil {
			return Change{}, nil, err
		}
		out.Note = n
		text := n.ContentText()
		if req.Content != nil {
			text = *req.Content
		}
		if strings.TrimSpace(text) == "" {
			return Change{}, nil, fmt.Errorf("%w: note has no content to summarize", apperr.ErrInvalidInput)
		}

		res, err := c.summarizer.Summarize(ctx, text, req.Prompt)
		if err != nil {
			return Change{}, nil, err
		}
		out.Result = res
		if res.Summary == "" {
			return Change{}, out, nil
		}

		at := res.CreatedAt
		if at.IsZero() {
			at = c.now().UTC()
		}
		patch := models.NotePatch{
			Summary:          models.Some(&res.Summary),
			SummaryUpdatedAt: models.Some(&at),
		}
		n, err := c.dal.UpdateNote(ctx, noteID, patch)
		if err != nil {
			return Change{}, nil, &apperr.SummaryPersistError{NoteID: noteID, Summary: res.Summary, Err: err}
		}
		out.Generated = true
		out.Note = n
		return Change{Op: OpSummarize, Note: n, Patch: patch}, out, nil
	})
	if err != nil {
		return SummaryOutcome{}, err
	}
	return out, nil
}
