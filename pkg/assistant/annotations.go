package assistant

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// FileRef pairs an uploaded file's ID with its display name. The slice
// position matters: indexed citation markers ("[0:source]") refer to
// positions in this slice.
type FileRef struct {
	ID   string
	Name string
}

const (
	docMarker = "📄"
	urlMarker = "🔗"
)

var (
	indexedCiteRe = regexp.MustCompile(`\[(\d+):source\]`)
	docCiteRe     = regexp.MustCompile(`\[doc_(\d+)\]`)
	fileCiteRe    = regexp.MustCompile(`\[file_(\d+)\]`)
	refSpanRe     = regexp.MustCompile(`<span class="document-reference">([^<]*)</span>`)

	// A fragment that looks like the tail of a filename split across
	// annotations: starts with an uppercase letter and ends in a known
	// document extension.
	continuationRe = regexp.MustCompile(`^\p{Lu}.*\.(?i:docx?|xlsx?|pdf|txt|csv|pptx?)$`)
)

// Spans closer together than this are assumed to be fragments of one
// reference.
const mergeGapLimit = 20

func refSpan(marker, label string) string {
	return `<span class="document-reference">` + marker + " " + label + `</span>`
}

// RewriteCitations converts citation markers and annotation spans in an
// assistant reply into presentational reference spans. Files resolve in
// three passes: indexed "[n:source]" markers against the files slice,
// annotation spans against file and URL citations, then a sweep for
// residual "[doc_n]"/"[file_n]" patterns the model sometimes emits.
func RewriteCitations(text string, files []FileRef, annotations []Annotation) string {
	out := text

	for i, f := range files {
		marker := fmt.Sprintf("[%d:source]", i)
		if !strings.Contains(out, marker) {
			continue
		}
		out = strings.ReplaceAll(out, marker, refSpan(docMarker, fileLabel(f.Name, i)))
	}
	out = indexedCiteRe.ReplaceAllStringFunc(out, func(m string) string {
		n, _ := strconv.Atoi(indexedCiteRe.FindStringSubmatch(m)[1])
		return refSpan(docMarker, fileLabel("", n))
	})

	byID := make(map[string]string, len(files))
	for _, f := range files {
		if f.ID != "" && f.Name != "" {
			byID[f.ID] = f.Name
		}
	}
	for i, ann := range annotations {
		if ann.Text == "" {
			continue
		}
		out = strings.Replace(out, ann.Text, annotationSpan(ann, byID, i), 1)
	}

	out = docCiteRe.ReplaceAllStringFunc(out, func(m string) string {
		n, _ := strconv.Atoi(docCiteRe.FindStringSubmatch(m)[1])
		return refSpan(docMarker, fileLabel(fileAt(files, n), n))
	})
	out = fileCiteRe.ReplaceAllStringFunc(out, func(m string) string {
		n, _ := strconv.Atoi(fileCiteRe.FindStringSubmatch(m)[1])
		return refSpan(docMarker, fileLabel(fileAt(files, n), n))
	})

	return mergeFragmentedReferences(out)
}

func fileAt(files []FileRef, n int) string {
	if n >= 0 && n < len(files) {
		return files[n].Name
	}
	return ""
}

func fileLabel(name string, n int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("Kaynak Dosya %d", n+1)
}

func annotationSpan(ann Annotation, filesByID map[string]string, n int) string {
	if ann.URLCite != nil {
		return refSpan(urlMarker, urlLabel(ann.URLCite, n))
	}
	if ann.FileCite != nil {
		if name := filesByID[ann.FileCite.FileID]; name != "" {
			return refSpan(docMarker, name)
		}
		return refSpan(docMarker, fmt.Sprintf("Kaynak Dosya %d", n+1))
	}
	return refSpan(docMarker, fmt.Sprintf("Kaynak %d", n+1))
}

func urlLabel(cite *URLCitation, n int) string {
	if cite.Title != "" {
		return cite.Title
	}
	if u, err := url.Parse(cite.URL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
		if u.Host != "" {
			return u.Host
		}
	}
	return fmt.Sprintf("Web Kaynağı %d", n+1)
}

// mergeFragmentedReferences coalesces adjacent reference spans that the
// model split one filename across. Spans merge when the text between
// them is short and span-free, or when the second span reads like the
// continuation of a filename. Runs to a fixed point.
func mergeFragmentedReferences(text string) string {
	for i := 0; i < 10; i++ {
		merged, changed := mergeOnce(text)
		if !changed {
			return merged
		}
		text = merged
	}
	return text
}

func mergeOnce(text string) (string, bool) {
	locs := refSpanRe.FindAllStringSubmatchIndex(text, -1)
	for i := 0; i+1 < len(locs); i++ {
		cur, next := locs[i], locs[i+1]
		gap := text[cur[1]:next[0]]
		if strings.Contains(gap, "<") {
			continue
		}
		first := cleanFragment(text[cur[2]:cur[3]])
		second := cleanFragment(text[next[2]:next[3]])
		near := len(gap) <= mergeGapLimit
		continuation := len(gap) <= 2*mergeGapLimit && continuationRe.MatchString(second)
		if !near && !continuation {
			continue
		}
		combined := refSpan(docMarker, strings.TrimSpace(first+" "+second))
		return text[:cur[0]] + combined + text[next[1]:], true
	}
	return text, false
}

func cleanFragment(s string) string {
	s = strings.TrimPrefix(s, docMarker)
	s = strings.TrimPrefix(s, urlMarker)
	return strings.TrimSpace(s)
}

// ResolveFiles builds the file-ID→filename references for an agent by
// consulting, in order, its vector stores, its code interpreter
// attachments, and direct file lookups. Each source can fail
// independently; failures are logged and the remaining sources still
// contribute.
func (c *Client) ResolveFiles(ctx context.Context, agentID string) []FileRef {
	var refs []FileRef
	seen := map[string]bool{}

	info, err := c.GetAgent(ctx, agentID)
	if err != nil {
		c.logger.Warn("resolving agent files: agent lookup failed", "agent_id", agentID, "error", err)
		return refs
	}
	if info.ToolResources == nil {
		return refs
	}

	if fs := info.ToolResources.FileSearch; fs != nil {
		for _, storeID := range fs.VectorStoreIDs {
			files, err := c.ListVectorStoreFiles(ctx, storeID)
			if err != nil {
				c.logger.Warn("resolving agent files: vector store listing failed",
					"vector_store_id", storeID, "error", err)
				continue
			}
			for _, f := range files {
				if seen[f.ID] {
					continue
				}
				seen[f.ID] = true
				refs = append(refs, FileRef{ID: f.ID, Name: c.lookupFilename(ctx, f)})
			}
		}
	}

	if ci := info.ToolResources.CodeInterpreter; ci != nil {
		for _, fileID := range ci.FileIDs {
			if seen[fileID] {
				continue
			}
			seen[fileID] = true
			refs = append(refs, FileRef{ID: fileID, Name: c.lookupFilename(ctx, File{ID: fileID})})
		}
	}
	return refs
}

func (c *Client) lookupFilename(ctx context.Context, f File) string {
	if f.Filename != "" {
		return f.Filename
	}
	full, err := c.GetFile(ctx, f.ID)
	if err != nil {
		c.logger.Warn("resolving agent files: file lookup failed", "file_id", f.ID, "error", err)
		return ""
	}
	return full.Filename
}
