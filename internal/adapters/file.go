package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// FileAdapter ingests uploaded files from blob storage. It skips the
// fetching step entirely - the upload already delivered the bytes.
type FileAdapter struct {
	baseAdapter
	blobs   interfaces.BlobStorage
	tempDir string
}

// NewFileAdapter creates the file provider adapter
func NewFileAdapter(deps Deps, blobs interfaces.BlobStorage) *FileAdapter {
	tempDir := filepath.Join(os.TempDir(), "brains-files")
	os.MkdirAll(tempDir, 0755)
	return &FileAdapter{baseAdapter: newBase(deps), blobs: blobs, tempDir: tempDir}
}

func (a *FileAdapter) Provider() models.Provider { return models.ProviderFile }

// Performs excludes fetching: local content has nothing to fetch
func (a *FileAdapter) Performs(step models.Step) bool {
	return step.Index() >= models.StepParsed.Index() && step.Index() <= models.StepIndexed.Index()
}

func (a *FileAdapter) Execute(ctx context.Context, source *models.Source, step models.Step, payload *interfaces.StepPayload) error {
	if handled, err := a.executeShared(ctx, source, step, payload); handled {
		return err
	}

	switch step {
	case models.StepParsed:
		return a.parse(ctx, source, payload)
	default:
		return fmt.Errorf("file adapter does not perform step %s", step)
	}
}

func (a *FileAdapter) parse(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	data, err := a.blobs.GetBlob(ctx, source.FileKey)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeParseFailed, "uploaded file is no longer in blob storage").WithCause(err)
	}

	ext := strings.ToLower(filepath.Ext(source.FileName))
	var markdown, text string

	switch ext {
	case ".pdf":
		text, err = a.extractPDF(data)
		if err != nil {
			return models.NewStepFailure(models.ErrCodeParseFailed, "failed to read the PDF").WithCause(err)
		}
		markdown = text

	case ".md", ".markdown":
		markdown = string(data)

	case ".txt", ".text":
		text = string(data)
		markdown = text

	case ".html", ".htm":
		markdown, _, err = a.transform.HTMLToMarkdown(string(data), "")
		if err != nil {
			return models.NewStepFailure(models.ErrCodeParseFailed, "failed to convert the HTML file").WithCause(err)
		}

	default:
		return models.NewStepFailure(models.ErrCodeFileUnsupported,
			fmt.Sprintf("file type %q is not supported; upload PDF, markdown, plain text or HTML", ext))
	}

	if strings.TrimSpace(markdown) == "" && strings.TrimSpace(text) == "" {
		return models.NewStepFailure(models.ErrCodeFileExtractionEmpty,
			"no text could be extracted from this file; if it is a scanned document, run OCR and upload the text")
	}

	payload.Markdown = markdown
	payload.Text = strings.TrimSpace(text)
	payload.Title = strings.TrimSuffix(source.FileName, ext)
	return a.persistDocument(ctx, source, payload)
}

// extractPDF pulls page text out of a PDF using pdfcpu. pdfcpu works on
// files, so the blob round-trips through a temp file.
func (a *FileAdapter) extractPDF(data []byte) (string, error) {
	tempFile, err := os.CreateTemp(a.tempDir, "extract_*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	tempFile.Close()

	outDir, err := os.MkdirTemp(a.tempDir, "pages_")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile.Name(), outDir, nil, conf); err != nil {
		return "", fmt.Errorf("content extraction failed: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("failed to read extraction output: %w", err)
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		b.Write(content)
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String()), nil
}
