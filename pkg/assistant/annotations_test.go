package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteIndexedCitation(t *testing.T) {
	files := []FileRef{{ID: "f1", Name: "Report.pdf"}}
	got := RewriteCitations("See [0:source] for details", files, nil)
	assert.Equal(t, `See <span class="document-reference">📄 Report.pdf</span> for details`, got)
}

func TestRewriteIndexedCitationFallback(t *testing.T) {
	got := RewriteCitations("See [0:source] for details", nil, nil)
	assert.Equal(t, `See <span class="document-reference">📄 Kaynak Dosya 1</span> for details`, got)
}

func TestRewriteAnnotationSpans(t *testing.T) {
	files := []FileRef{{ID: "f9", Name: "Policy.docx"}}
	anns := []Annotation{
		{Text: "【3:0†Policy.docx】", FileCite: &FileCitation{FileID: "f9"}},
		{Text: "【3:1†unknown】", FileCite: &FileCitation{FileID: "missing"}},
	}
	got := RewriteCitations("a 【3:0†Policy.docx】 b 【3:1†unknown】", files, anns)
	assert.Contains(t, got, `<span class="document-reference">📄 Policy.docx</span>`)
	assert.Contains(t, got, `<span class="document-reference">📄 Kaynak Dosya 2</span>`)
}

func TestRewriteURLCitations(t *testing.T) {
	anns := []Annotation{
		{Text: "[ref1]", URLCite: &URLCitation{URL: "https://example.com/a/b.html", Title: "Örnek Sayfa"}},
		{Text: "[ref2]", URLCite: &URLCitation{URL: "https://example.com/docs/guide.html"}},
		{Text: "[ref3]", URLCite: &URLCitation{URL: "https://example.com"}},
	}
	got := RewriteCitations("x [ref1] y [ref2] z [ref3]", nil, anns)
	assert.Contains(t, got, "🔗 Örnek Sayfa")
	assert.Contains(t, got, "🔗 guide.html")
	assert.Contains(t, got, "🔗 example.com")
}

func TestRewriteResidualPatterns(t *testing.T) {
	files := []FileRef{{ID: "f1", Name: "Rehber.pdf"}}
	got := RewriteCitations("bkz [doc_0] ve [file_3]", files, nil)
	assert.Contains(t, got, `<span class="document-reference">📄 Rehber.pdf</span>`)
	assert.Contains(t, got, `<span class="document-reference">📄 Kaynak Dosya 4</span>`)
}

func TestMergeFragmentedReferences(t *testing.T) {
	in := `<span class="document-reference">🔗 ARAÇ KULLANICI</span> <span class="document-reference">📄 SORUMLULUKLARI.docx</span>`
	got := mergeFragmentedReferences(in)
	assert.Equal(t, `<span class="document-reference">📄 ARAÇ KULLANICI SORUMLULUKLARI.docx</span>`, got)
}

func TestMergeRespectsDistance(t *testing.T) {
	in := `<span class="document-reference">📄 A.pdf</span> ile ilgili uzun bir açıklama cümlesi burada yer alıyor <span class="document-reference">📄 B.pdf</span>`
	got := mergeFragmentedReferences(in)
	assert.Equal(t, in, got)
}

func TestMergeTurkishContinuation(t *testing.T) {
	// Continuation tails merge even past the distance limit.
	in := `<span class="document-reference">📄 ARAÇ KULLANICI TALİMATI VE</span>, ek olarak bakınız <span class="document-reference">📄 SORUMLULUKLARI.docx</span>`
	got := mergeFragmentedReferences(in)
	assert.Equal(t, `<span class="document-reference">📄 ARAÇ KULLANICI TALİMATI VE SORUMLULUKLARI.docx</span>`, got)
}

func TestMergeChain(t *testing.T) {
	in := `<span class="document-reference">📄 İŞ</span> <span class="document-reference">📄 SAĞLIĞI</span> <span class="document-reference">📄 PROSEDÜRÜ.pdf</span>`
	got := mergeFragmentedReferences(in)
	assert.Equal(t, `<span class="document-reference">📄 İŞ SAĞLIĞI PROSEDÜRÜ.pdf</span>`, got)
}
