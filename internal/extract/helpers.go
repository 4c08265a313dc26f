// internal/extract/helpers.go
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Shared scraping helpers. Platform payloads disagree on escaping and
// structure, so everything here is deliberately forgiving: bad fragments are
// skipped, never fatal.

var (
	displayURLRe = regexp.MustCompile(`"display_url"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	mp4URLRe     = regexp.MustCompile(`https?://[^"'\s\\]+\.mp4[^"'\s\\]*`)
	// Matches "Alice (@alice) on Instagram" and similar title patterns.
	instagramAuthorRe = regexp.MustCompile(`\(@([A-Za-z0-9._]+)\)\s*on Instagram`)
)

// UnescapeJSONValue resolves the escape forms platform blobs actually use
// inside raw string literals lifted out of script text.
func UnescapeJSONValue(s string) string {
	r := strings.NewReplacer(
		`\u0026`, "&",
		`\u002F`, "/",
		`\u002f`, "/",
		`\/`, "/",
		`\"`, `"`,
	)
	return r.Replace(s)
}

// ExtractJSONStringValue scans blob for `"key":"..."` and returns the first
// unescaped value, or "" when the key is absent.
func ExtractJSONStringValue(blob, key string) string {
	needle := `"` + key + `":"`
	idx := strings.Index(blob, needle)
	if idx < 0 {
		// Tolerate whitespace around the colon.
		loose := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"`)
		loc := loose.FindStringIndex(blob)
		if loc == nil {
			return ""
		}
		idx = loc[0]
		needle = blob[loc[0]:loc[1]]
	}
	rest := blob[idx+len(needle):]

	// Walk to the closing quote, honoring backslash escapes.
	var b strings.Builder
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c == '\\' && i+1 < len(rest) {
			b.WriteByte(c)
			b.WriteByte(rest[i+1])
			i++
			continue
		}
		if c == '"' {
			return UnescapeJSONValue(b.String())
		}
		b.WriteByte(c)
	}
	return ""
}

// ExtractDisplayURLs pulls every display_url value out of blob, unescaped
// and deduplicated in first-seen order. Only http(s) URLs survive.
func ExtractDisplayURLs(blob string) []string {
	matches := displayURLRe.FindAllStringSubmatch(blob, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		u := UnescapeJSONValue(m[1])
		if !strings.HasPrefix(u, "http") {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// FindMP4URL returns the first plausible direct .mp4 URL in blob, skipping
// placeholder assets.
func FindMP4URL(blob string) string {
	for _, m := range mp4URLRe.FindAllString(blob, -1) {
		u := UnescapeJSONValue(m)
		if strings.Contains(u, "sample") || strings.Contains(u, "dummy") {
			continue
		}
		return u
	}
	return ""
}

// InstagramAuthor extracts the username from a "Name (@username) on
// Instagram" pattern, or "" when absent.
func InstagramAuthor(s string) string {
	m := instagramAuthorRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// Script is one <script> element lifted from a document.
type Script struct {
	Type string
	ID   string
	Text string
}

// Document is a lightly parsed view of a captured page: the pieces every
// cascade reads, extracted once.
type Document struct {
	Title   string
	Meta    map[string]string // og:* and name= properties, first value wins
	Scripts []Script
}

// ParseDocument parses raw HTML into a Document. Parse errors yield an empty
// document rather than failing; a truncated capture can still carry usable
// script blobs.
func ParseDocument(rawHTML string) *Document {
	doc := &Document{Meta: make(map[string]string)}
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return doc
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if doc.Title == "" {
					doc.Title = textContent(n)
				}
			case "meta":
				key := attrValue(n, "property")
				if key == "" {
					key = attrValue(n, "name")
				}
				if key != "" {
					if _, exists := doc.Meta[key]; !exists {
						doc.Meta[key] = attrValue(n, "content")
					}
				}
			case "script":
				doc.Scripts = append(doc.Scripts, Script{
					Type: attrValue(n, "type"),
					ID:   attrValue(n, "id"),
					Text: textContent(n),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return doc
}

// ScriptByID returns the text of the script with the given id, or "".
func (d *Document) ScriptByID(id string) string {
	for _, s := range d.Scripts {
		if s.ID == id {
			return s.Text
		}
	}
	return ""
}

// ScriptsByType returns the text of every script with the given type.
func (d *Document) ScriptsByType(scriptType string) []string {
	var out []string
	for _, s := range d.Scripts {
		if strings.EqualFold(s.Type, scriptType) {
			out = append(out, s.Text)
		}
	}
	return out
}

// VideoSources returns the src of every <video> element in rawHTML, checking
// child <source> elements when the video itself has none.
func VideoSources(rawHTML string) []string {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "video" {
			if src := attrValue(n, "src"); src != "" {
				out = append(out, src)
			} else {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && c.Data == "source" {
						if src := attrValue(c, "src"); src != "" {
							out = append(out, src)
							break
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
