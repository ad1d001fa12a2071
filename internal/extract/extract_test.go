package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"report.pdf", FormatPDF},
		{"Report.PDF", FormatPDF},
		{"memo.docx", FormatDOCX},
		{"page.htm", FormatHTML},
		{"page.html", FormatHTML},
		{"README.md", FormatMD},
		{"notes.txt", FormatText},
		{"scan.jpeg", FormatImage},
	}
	for _, tt := range tests {
		got, err := Detect(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	for _, name := range []string{"sheet.xlsx", "noext", "archive.tar.gz"} {
		_, err := Detect(name)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, name)
	}
}

func TestExtractUnsupported(t *testing.T) {
	_, err := New(0).Extract(context.Background(), []byte("x"), "a.xlsx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, errors.Is(err, ErrExtraction))
}

func TestExtractText(t *testing.T) {
	res, err := New(0).Extract(context.Background(), []byte("\xEF\xBB\xBFfirst line  \r\nsecond\r\n\r\n"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, FormatText, res.Format)
	assert.Equal(t, "first line\nsecond", res.Text)
	assert.Equal(t, "first line", res.Title)
	assert.Equal(t, 2, res.Metadata["line_count"])
}

func TestExtractMarkdownTitle(t *testing.T) {
	res, err := New(0).Extract(context.Background(), []byte("intro\n\n## Setup ##\n\nbody"), "README.md")
	require.NoError(t, err)
	assert.Equal(t, FormatMD, res.Format)
	assert.Equal(t, "Setup", res.Title)
	assert.Equal(t, "intro\n\n## Setup ##\n\nbody", res.Text)
}

func TestExtractTextInvalidUTF8(t *testing.T) {
	_, err := New(0).Extract(context.Background(), []byte{0xff, 0xfe, 'a'}, "bad.txt")
	var extErr *Error
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, FormatText, extErr.Format)
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestExtractEmptyIsNoText(t *testing.T) {
	_, err := New(0).Extract(context.Background(), []byte("  \n\t"), "blank.txt")
	assert.ErrorIs(t, err, ErrNoText)
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestExtractImageNeedsOCR(t *testing.T) {
	_, err := New(0).Extract(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "scan.png")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractTooLarge(t *testing.T) {
	_, err := New(4).Extract(context.Background(), []byte("0123456789"), "big.txt")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestExtractCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(0).Extract(ctx, []byte("text"), "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func buildDOCX(t *testing.T, documentXML, coreXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(documentXML))
	require.NoError(t, err)
	if coreXML != "" {
		fw, err = w.Create("docProps/core.xml")
		require.NoError(t, err)
		_, err = fw.Write([]byte(coreXML))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Quarterly Report</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Revenue grew </w:t></w:r><w:r><w:t>again.</w:t></w:r></w:p>
<w:p><w:r><w:t>   </w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Outlook</w:t></w:r></w:p>
<w:p><w:r><w:t>Stable.</w:t></w:r></w:p>
</w:body>
</w:document>`

func TestExtractDOCX(t *testing.T) {
	core := `<?xml version="1.0" encoding="UTF-8"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">
<dc:creator>Ada</dc:creator>
<dcterms:created>2023-03-01T10:00:00Z</dcterms:created>
</cp:coreProperties>`

	res, err := New(0).Extract(context.Background(), buildDOCX(t, sampleDocumentXML, core), "report.docx")
	require.NoError(t, err)

	assert.Equal(t, FormatDOCX, res.Format)
	assert.Equal(t, "Quarterly Report", res.Title)
	assert.Equal(t, "# Quarterly Report\n\nRevenue grew again.\n\n## Outlook\n\nStable.", res.Text)
	assert.Equal(t, 4, res.Metadata["paragraph_count"])
	assert.Equal(t, 2, res.Metadata["heading_count"])
	assert.Equal(t, "2023-03-01T10:00:00Z", res.Metadata["created"])
	assert.Equal(t, "Ada", res.Metadata["author"])
}

func TestExtractDOCXErrors(t *testing.T) {
	ex := New(0)

	_, err := ex.Extract(context.Background(), []byte("not a zip"), "broken.docx")
	assert.ErrorIs(t, err, ErrExtraction)

	var nested strings.Builder
	nested.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for i := 0; i < 300; i++ {
		nested.WriteString("<w:p>")
	}
	for i := 0; i < 300; i++ {
		nested.WriteString("</w:p>")
	}
	nested.WriteString("</w:body></w:document>")

	_, err = ex.Extract(context.Background(), buildDOCX(t, nested.String(), ""), "bomb.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting depth")
}

func TestHeadingLevel(t *testing.T) {
	assert.Equal(t, 1, headingLevel("Title"))
	assert.Equal(t, 2, headingLevel("Subtitle"))
	assert.Equal(t, 3, headingLevel("Heading3"))
	assert.Equal(t, 2, headingLevel("heading 2"))
	assert.Equal(t, 1, headingLevel("Titre1"))
	assert.Equal(t, 0, headingLevel("Normal"))
	assert.Equal(t, 0, headingLevel("Heading7"))
}

func TestExtractHTML(t *testing.T) {
	page := `<!DOCTYPE html>
<html lang="en">
<head><title>  Field
 Notes </title><style>p { color: red }</style></head>
<body>
<script>alert("x")</script>
<h1>Report</h1>
<p>Hello <strong>world</strong></p>
<p style="display:none">secret text</p>
<ul><li>one</li><li>two</li></ul>
</body>
</html>`

	res, err := New(0).Extract(context.Background(), []byte(page), "page.html")
	require.NoError(t, err)

	assert.Equal(t, FormatHTML, res.Format)
	assert.Equal(t, "Field Notes", res.Title)
	assert.Equal(t, "Field Notes", res.Metadata["title"])
	assert.Equal(t, "en", res.Metadata["lang"])
	assert.Contains(t, res.Text, "# Report")
	assert.Contains(t, res.Text, "Hello **world**")
	assert.Contains(t, res.Text, "- one")
	assert.NotContains(t, res.Text, "secret")
	assert.NotContains(t, res.Text, "alert")
	assert.NotContains(t, res.Text, "color")
	assert.NotContains(t, res.Text, "Field Notes")
}

func buildPDF(stream string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	offsets := make([]int, 6)
	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")
	offsets[4] = b.Len()
	b.WriteString("4 0 obj\n<< /Length " + strconv.Itoa(len(stream)) + " >>\nstream\n")
	b.WriteString(stream)
	b.WriteString("\nendstream\nendobj\n")
	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xref := b.Len()
	b.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		b.WriteString(padOffset(offsets[i]) + " 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n")
	b.WriteString(strconv.Itoa(xref))
	b.WriteString("\n%%EOF\n")
	return []byte(b.String())
}

func padOffset(n int) string {
	s := strconv.Itoa(n)
	return strings.Repeat("0", 10-len(s)) + s
}

func TestExtractPDF(t *testing.T) {
	raw := buildPDF("BT\n/F1 12 Tf\n72 720 Td\n(Hello World from \\(PDF\\)) Tj\nET")

	res, err := New(0).Extract(context.Background(), raw, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, res.Format)
	assert.Contains(t, res.Text, "Hello World from (PDF)")
	assert.Equal(t, 1, res.Metadata["page_count"])
	assert.Equal(t, false, res.Metadata["has_images"])
	assert.Positive(t, res.Metadata["chars_per_page"])
}

func TestExtractPDFWithoutText(t *testing.T) {
	_, err := New(0).Extract(context.Background(), buildPDF("BT\nET"), "scan.pdf")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractPDFCorrupt(t *testing.T) {
	_, err := New(0).Extract(context.Background(), []byte("%PDF-1.4\ngarbage"), "bad.pdf")
	assert.ErrorIs(t, err, ErrExtraction)
	assert.False(t, errors.Is(err, ErrNoText))
}

func TestDecodePDFString(t *testing.T) {
	assert.Equal(t, "a(b)c", decodePDFString([]byte(`a\(b\)c`)))
	assert.Equal(t, "tab\there", decodePDFString([]byte(`tab\there`)))
	assert.Equal(t, "A B", decodePDFString([]byte(`\101\040B`)))
}
