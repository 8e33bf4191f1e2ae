package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/invoicing/web"
)

// GotenbergRenderer converts the HTML invoice template to PDF through Gotenberg.
type GotenbergRenderer struct {
	Endpoint  string
	Client    *http.Client
	templates *template.Template
}

// NewGotenbergRenderer parses the embedded invoice template.
func NewGotenbergRenderer(endpoint string, client *http.Client) (*GotenbergRenderer, error) {
	tpl, err := template.ParseFS(web.Templates, "templates/reports/invoice.html")
	if err != nil {
		return nil, fmt.Errorf("export: parse invoice template: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GotenbergRenderer{Endpoint: endpoint, Client: client, templates: tpl}, nil
}

// RenderHTML executes the invoice template.
func (g *GotenbergRenderer) RenderHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, "invoice.html", doc); err != nil {
		return "", fmt.Errorf("export: execute invoice template: %w", err)
	}
	return buf.String(), nil
}

// Render implements Renderer.
func (g *GotenbergRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if g == nil || g.templates == nil {
		return nil, fmt.Errorf("gotenberg renderer not initialised")
	}
	endpoint := strings.TrimRight(g.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("gotenberg endpoint required")
	}

	html, err := g.RenderHTML(doc)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	if err := writer.WriteField("paperWidth", "8.27"); err != nil {
		return nil, err
	}
	if err := writer.WriteField("paperHeight", "11.7"); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Gotenberg-Output-Filename", strings.TrimSuffix(doc.Filename, ".pdf"))

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("gotenberg response %d: %s", resp.StatusCode, string(data))
	}
	return io.ReadAll(resp.Body)
}

// Ping checks that Gotenberg answers its health endpoint.
func (g *GotenbergRenderer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(g.Endpoint, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// NewRenderer selects a renderer by name: "gotenberg" or "gofpdf" (default).
func NewRenderer(kind, gotenbergURL string) (Renderer, error) {
	switch strings.ToLower(kind) {
	case "", "gofpdf":
		return NewFPDFRenderer(), nil
	case "gotenberg":
		return NewGotenbergRenderer(gotenbergURL, nil)
	default:
		return nil, fmt.Errorf("export: unknown pdf renderer %q", kind)
	}
}
