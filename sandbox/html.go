package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pageScript is one script of a loaded page, in document order.
type pageScript struct {
	// Name identifies the script in stack traces.
	Name   string
	Source string
}

// scriptTypes lists <script type> values that are executed.
var scriptTypes = map[string]bool{
	"":                       true,
	"text/javascript":        true,
	"application/javascript": true,
	"module":                 false,
}

// collectScripts returns the scripts a document runs. A JavaScript document
// is a single script. For HTML, inline and external <script> elements are
// collected in order; external sources are fetched with fetcher.
func collectScripts(ctx context.Context, doc *Document, fetcher Fetcher, headers map[string]string) ([]pageScript, error) {
	if !doc.IsHTML() {
		return []pageScript{{Name: doc.URL, Source: doc.Body}}, nil
	}
	if strings.TrimSpace(doc.Body) == "" {
		return nil, nil
	}

	html, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var (
		scripts  []pageScript
		firstErr error
	)
	html.Find("script").Each(func(i int, s *goquery.Selection) {
		if firstErr != nil {
			return
		}
		typ, _ := s.Attr("type")
		if !scriptTypes[strings.ToLower(strings.TrimSpace(typ))] {
			return
		}

		src, hasSrc := s.Attr("src")
		if !hasSrc {
			scripts = append(scripts, pageScript{
				Name:   fmt.Sprintf("%s#script%d", doc.URL, i),
				Source: s.Text(),
			})
			return
		}

		ref, err := resolve(doc.URL, src)
		if err != nil {
			firstErr = err
			return
		}
		ext, err := fetcher.Fetch(ctx, ref, headers)
		if err != nil {
			firstErr = fmt.Errorf("load script %s: %w", ref, err)
			return
		}
		scripts = append(scripts, pageScript{Name: ref, Source: ext.Body})
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return scripts, nil
}
