package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/httpclient"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

const xOEmbedEndpoint = "https://publish.twitter.com/oembed"

const xFallbackMsg = "X blocks unauthenticated access to this content; copy the post text and upload it as a file instead"

// XAdapter ingests individual X posts through the public oEmbed endpoint,
// the only interface X exposes without authentication.
type XAdapter struct {
	baseAdapter
	client *httpclient.Client
}

// NewXAdapter creates the x provider adapter
func NewXAdapter(deps Deps, client *httpclient.Client) *XAdapter {
	return &XAdapter{baseAdapter: newBase(deps), client: client}
}

func (a *XAdapter) Provider() models.Provider { return models.ProviderX }

func (a *XAdapter) Performs(step models.Step) bool {
	return step.Index() >= models.StepFetching.Index() && step.Index() <= models.StepIndexed.Index()
}

func (a *XAdapter) Execute(ctx context.Context, source *models.Source, step models.Step, payload *interfaces.StepPayload) error {
	if handled, err := a.executeShared(ctx, source, step, payload); handled {
		return err
	}

	switch step {
	case models.StepFetching:
		return a.fetch(ctx, source, payload)
	case models.StepParsed:
		return a.parse(ctx, source, payload)
	default:
		return fmt.Errorf("x adapter does not perform step %s", step)
	}
}

type xOEmbedResponse struct {
	AuthorName string `json:"author_name"`
	HTML       string `json:"html"`
	Title      string `json:"title"`
}

func (a *XAdapter) fetch(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	endpoint := fmt.Sprintf("%s?url=%s&omit_script=true", xOEmbedEndpoint, url.QueryEscape(source.URL))

	status, body, err := a.client.Get(ctx, endpoint)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeFetchFailed, "failed to reach the X oEmbed endpoint").WithCause(err)
	}

	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return models.NewStepFailure(models.ErrCodeXBlocked, xFallbackMsg).
			WithHTTPStatus(status)
	case status == http.StatusNotFound:
		return models.NewStepFailure(models.ErrCodeXBlocked, "post not found or restricted; "+xFallbackMsg).
			WithHTTPStatus(status)
	case status == http.StatusTooManyRequests:
		return models.NewStepFailure(models.ErrCodeRateLimited, "X rate-limited the request; the job will retry with backoff").
			WithHTTPStatus(status)
	case status >= 400:
		return models.NewStepFailure(models.ErrCodeFetchFailed, fmt.Sprintf("X oEmbed returned HTTP %d", status)).
			WithHTTPStatus(status)
	}

	var oembed xOEmbedResponse
	if err := json.Unmarshal(body, &oembed); err != nil {
		return models.NewStepFailure(models.ErrCodeParseFailed, "X oEmbed returned an unparseable response").WithCause(err)
	}
	if strings.TrimSpace(oembed.HTML) == "" {
		return models.NewStepFailure(models.ErrCodeXBlocked, xFallbackMsg)
	}

	payload.HTML = oembed.HTML
	if oembed.AuthorName != "" {
		payload.Metadata["author"] = oembed.AuthorName
	}
	payload.Title = oembed.Title
	return nil
}

func (a *XAdapter) parse(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	markdown, title, err := a.transform.HTMLToMarkdown(payload.HTML, source.URL)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeParseFailed, "failed to convert post to markdown").WithCause(err)
	}
	if strings.TrimSpace(markdown) == "" {
		return models.NewStepFailure(models.ErrCodeContentEmpty, "post contained no readable text")
	}

	payload.Markdown = markdown
	if payload.Title == "" {
		payload.Title = title
	}
	if payload.Title == "" {
		if author, ok := payload.Metadata["author"].(string); ok {
			payload.Title = fmt.Sprintf("Post by %s", author)
		}
	}
	return a.persistDocument(ctx, source, payload)
}
