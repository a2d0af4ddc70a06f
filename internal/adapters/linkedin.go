package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/httpclient"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// linkedInBlockedStatus is the conventional status surfaced for a
// LinkedIn login wall; LinkedIn itself answers bot traffic with 999.
const linkedInBlockedStatus = 999

const linkedInFallbackMsg = "LinkedIn blocks unauthenticated access to this content; copy the post or profile text and upload it as a file instead"

// LinkedInAdapter ingests public LinkedIn pages. This system refuses to
// automate login, so anything behind the auth wall fails terminally with
// an actionable fallback in the error message.
type LinkedInAdapter struct {
	baseAdapter
	client *httpclient.Client
}

// NewLinkedInAdapter creates the linkedin provider adapter
func NewLinkedInAdapter(deps Deps, client *httpclient.Client) *LinkedInAdapter {
	return &LinkedInAdapter{baseAdapter: newBase(deps), client: client}
}

func (a *LinkedInAdapter) Provider() models.Provider { return models.ProviderLinkedIn }

func (a *LinkedInAdapter) Performs(step models.Step) bool {
	return step.Index() >= models.StepFetching.Index() && step.Index() <= models.StepIndexed.Index()
}

func (a *LinkedInAdapter) Execute(ctx context.Context, source *models.Source, step models.Step, payload *interfaces.StepPayload) error {
	if handled, err := a.executeShared(ctx, source, step, payload); handled {
		return err
	}

	switch step {
	case models.StepFetching:
		return a.fetch(ctx, source, payload)
	case models.StepParsed:
		return a.parse(ctx, source, payload)
	default:
		return fmt.Errorf("linkedin adapter does not perform step %s", step)
	}
}

func (a *LinkedInAdapter) fetch(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	status, body, err := a.client.Get(ctx, source.URL)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeFetchFailed, "failed to fetch LinkedIn page").WithCause(err)
	}

	if blocked(status, string(body)) {
		return models.NewStepFailure(models.ErrCodeLinkedInBlocked, linkedInFallbackMsg).
			WithHTTPStatus(linkedInBlockedStatus).
			WithProviderCode(fmt.Sprintf("http_%d", status))
	}
	if status >= 400 {
		return models.NewStepFailure(models.ErrCodeFetchFailed, fmt.Sprintf("LinkedIn returned HTTP %d", status)).
			WithHTTPStatus(status)
	}

	payload.HTML = string(body)
	return nil
}

func (a *LinkedInAdapter) parse(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	markdown, title, err := a.transform.HTMLToMarkdown(payload.HTML, source.URL)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeParseFailed, "failed to convert LinkedIn page to markdown").WithCause(err)
	}
	if strings.TrimSpace(markdown) == "" {
		// A 200 shell with no readable text is still the auth wall
		return models.NewStepFailure(models.ErrCodeLinkedInBlocked, linkedInFallbackMsg).
			WithHTTPStatus(linkedInBlockedStatus)
	}

	payload.Markdown = markdown
	payload.Title = title
	return a.persistDocument(ctx, source, payload)
}

// blocked recognizes the LinkedIn auth wall: the 999 bot response, auth
// redirect statuses, or an authwall page served with a 200.
func blocked(status int, body string) bool {
	if status == linkedInBlockedStatus || status == http.StatusForbidden || status == http.StatusUnauthorized {
		return true
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "authwall") || strings.Contains(lower, "join linkedin") && strings.Contains(lower, "sign in")
}
