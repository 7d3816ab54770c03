// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
)

func testState(lang language.Language) *contract.State {
	return &contract.State{
		ID:        "contract-1",
		Type:      contract.TypeResidential,
		Language:  lang,
		Clauses:   contract.BuildClauses(contract.TypeResidential, []string{"furnished"}, lang),
		Fields:    map[contract.FieldName]contract.FieldValue{contract.FieldCity: contract.Concrete("Amman")},
		Revision:  3,
		CreatedAt: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPDFRenderer_HTML(t *testing.T) {
	r := NewPDFRenderer(PDFConfig{ChromePath: "/nonexistent"})

	tests := []struct {
		name    string
		lang    language.Language
		dir     string
		meta    string
		heading string
	}{
		{"english is left to right", language.English, `dir="ltr"`, "Revision 3", "<h2>1. "},
		{"arabic is right to left", language.Arabic, `dir="rtl"`, "الإصدار 3", "<h2>1. "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testState(tt.lang)
			doc, err := r.HTML(s)
			require.NoError(t, err)
			out := string(doc)

			assert.True(t, strings.HasPrefix(out, "<!doctype html>"))
			assert.Contains(t, out, tt.dir)
			assert.Contains(t, out, tt.meta)
			assert.Contains(t, out, tt.heading)
			assert.Contains(t, out, "<h1>")
			assert.Equal(t, len(s.Clauses), strings.Count(out, "<h2>"))
		})
	}
}

func TestPDFRenderer_HTMLEscapesTitle(t *testing.T) {
	r := NewPDFRenderer(PDFConfig{ChromePath: "/nonexistent"})
	s := testState(language.English)
	s.ID = `<script>alert(1)</script>`

	doc, err := r.HTML(s)
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "<script>")
}

func TestNewPDFRenderer_Defaults(t *testing.T) {
	r := NewPDFRenderer(PDFConfig{ChromePath: "/opt/chrome"})
	assert.Equal(t, 30*time.Second, r.cfg.Timeout)
	assert.Equal(t, "/opt/chrome", r.cfg.ChromePath)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "contracts/s1/contract-1-r3.pdf", ObjectKey("s1", testState(language.English)))
}

func TestNewArchive(t *testing.T) {
	_, err := NewArchive(ArchiveConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err, "bucket is required")

	a, err := NewArchive(ArchiveConfig{Endpoint: "localhost:9000", Bucket: "leases", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, a.cfg.URLExpiry)
}
