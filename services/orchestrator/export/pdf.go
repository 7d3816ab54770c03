// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export renders committed contracts to PDF and archives them.
//
// # Description
//
// The contract's Markdown is converted to HTML with goldmark, wrapped in a
// print stylesheet (right-to-left for Arabic), and printed to PDF by a
// headless Chromium driven through chromedp. Rendered files can be stored
// in an S3-compatible bucket with Archive.
package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
)

var tracer = otel.Tracer("leasecore.orchestrator.export")

// Renderer turns a contract into a PDF document.
type Renderer interface {
	Render(ctx context.Context, state *contract.State) ([]byte, error)
}

// PDFConfig configures the Chromium renderer.
type PDFConfig struct {
	// ChromePath overrides browser discovery. Empty means detect.
	ChromePath string

	// Timeout bounds one render. Default: 30s
	Timeout time.Duration
}

// PDFRenderer prints contracts through headless Chromium.
//
// # Thread Safety
//
// Safe for concurrent use. Each render starts its own browser.
type PDFRenderer struct {
	cfg PDFConfig
	md  goldmark.Markdown
}

var _ Renderer = (*PDFRenderer)(nil)

// NewPDFRenderer creates a PDFRenderer.
func NewPDFRenderer(cfg PDFConfig) *PDFRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChromePath == "" {
		cfg.ChromePath = detectChromePath()
	}
	return &PDFRenderer{
		cfg: cfg,
		md:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Render implements Renderer.
func (r *PDFRenderer) Render(ctx context.Context, state *contract.State) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "PDFRenderer.Render")
	defer span.End()
	span.SetAttributes(
		attribute.String("contract_id", state.ID),
		attribute.Int64("revision", state.Revision),
		attribute.String("language", string(state.Language)),
	)

	doc, err := r.HTML(state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "html build failed")
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
		`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString(doc)
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.6).
				WithMarginBottom(0.75).
				WithMarginLeft(0.6).
				WithMarginRight(0.6).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "print failed")
		return nil, fmt.Errorf("print contract %s: %w", state.ID, err)
	}
	span.SetAttributes(attribute.Int("bytes", len(pdf)))
	return pdf, nil
}

// HTML builds the printable document for state.
func (r *PDFRenderer) HTML(state *contract.State) ([]byte, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(state.Render()), &body); err != nil {
		return nil, fmt.Errorf("markdown convert: %w", err)
	}

	dir, lang, align := "ltr", "en", "left"
	if state.Language == language.Arabic {
		dir, lang, align = "rtl", "ar", "right"
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, `<!doctype html><html lang="%s" dir="%s"><head><meta charset="utf-8"><title>%s</title>`,
		lang, dir, html.EscapeString(state.Title()))
	out.WriteString("<style>")
	fmt.Fprintf(&out, "body{font-family:'Noto Naskh Arabic','Amiri','Times New Roman',serif;font-size:12pt;line-height:1.6;color:#111;direction:%s;text-align:%s;}", dir, align)
	out.WriteString("h1{text-align:center;font-size:18pt;margin-bottom:1.2rem;}")
	out.WriteString("h2{font-size:13pt;margin:1rem 0 0.3rem;break-after:avoid;}")
	out.WriteString("p{margin:0 0 0.6rem;text-align:justify;}")
	out.WriteString(".meta{font-size:9pt;color:#555;border-bottom:1px solid #aaa;padding-bottom:0.4rem;margin-bottom:1rem;}")
	out.WriteString("@media print{@page{size:A4;margin:15mm;}}")
	out.WriteString("</style></head><body>")
	fmt.Fprintf(&out, `<div class="meta">%s %s · %s %d</div>`,
		html.EscapeString(state.Language.Pick("رقم العقد", "Contract")),
		html.EscapeString(state.ID),
		html.EscapeString(state.Language.Pick("الإصدار", "Revision")),
		state.Revision)
	out.Write(body.Bytes())
	out.WriteString("</body></html>")
	return out.Bytes(), nil
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
