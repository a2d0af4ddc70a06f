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

// WebAdapter ingests arbitrary web pages: static fetch through the
// rate-limited client, with an optional JavaScript render fallback when
// the static HTML carries no readable content.
type WebAdapter struct {
	baseAdapter
	client   *httpclient.Client
	renderer *Renderer
}

// NewWebAdapter creates the web provider adapter. renderer may be nil
// when JavaScript rendering is disabled.
func NewWebAdapter(deps Deps, client *httpclient.Client, renderer *Renderer) *WebAdapter {
	return &WebAdapter{baseAdapter: newBase(deps), client: client, renderer: renderer}
}

func (a *WebAdapter) Provider() models.Provider { return models.ProviderWeb }

func (a *WebAdapter) Performs(step models.Step) bool {
	return step.Index() >= models.StepFetching.Index() && step.Index() <= models.StepIndexed.Index()
}

func (a *WebAdapter) Execute(ctx context.Context, source *models.Source, step models.Step, payload *interfaces.StepPayload) error {
	if handled, err := a.executeShared(ctx, source, step, payload); handled {
		return err
	}

	switch step {
	case models.StepFetching:
		return a.fetch(ctx, source, payload)
	case models.StepParsed:
		return a.parse(ctx, source, payload)
	default:
		return fmt.Errorf("web adapter does not perform step %s", step)
	}
}

func (a *WebAdapter) fetch(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	status, body, err := a.client.Get(ctx, source.URL)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeFetchFailed, "failed to fetch page").WithCause(err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return models.NewStepFailure(models.ErrCodeRateLimited, "site rate-limited the fetch; the job will retry with backoff").
			WithHTTPStatus(status)
	case status >= 400:
		return models.NewStepFailure(models.ErrCodeFetchFailed, fmt.Sprintf("site returned HTTP %d", status)).
			WithHTTPStatus(status)
	}

	html := string(body)

	// Shell pages render their content client-side; fall back to a real
	// browser when one is configured.
	if a.renderer != nil && looksLikeEmptyShell(html) {
		rendered, rerr := a.renderer.Render(ctx, source.URL)
		if rerr != nil {
			a.logger.Warn().Err(rerr).Str("url", source.URL).Msg("JavaScript render failed, using static HTML")
		} else if rendered != "" {
			html = rendered
		}
	}

	payload.HTML = html
	return nil
}

func (a *WebAdapter) parse(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	markdown, title, err := a.transform.HTMLToMarkdown(payload.HTML, source.URL)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeParseFailed, "failed to convert page to markdown").WithCause(err)
	}
	if strings.TrimSpace(markdown) == "" {
		return models.NewStepFailure(models.ErrCodeContentEmpty, "page contained no readable content; if it requires login, save the content and upload it as a file")
	}

	payload.Markdown = markdown
	payload.Title = title
	return a.persistDocument(ctx, source, payload)
}

// looksLikeEmptyShell reports whether the HTML has almost no text outside
// of markup, the signature of a client-side rendered app shell.
func looksLikeEmptyShell(html string) bool {
	stripped := stripTags(html)
	return len(strings.TrimSpace(stripped)) < 200
}

func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
