package server

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReloadScriptPath is where the reload client is served.
const ReloadScriptPath = "/__assetpipe/reload.js"

var reloadTag = []byte(`<script src="` + ReloadScriptPath + `"></script>`)

// InjectReloadScript returns doc with the reload client tag inserted before
// the last </body>. Documents without a body end tag get it appended. The
// rest of the document is returned byte for byte.
func InjectReloadScript(doc []byte) []byte {
	insertAt := -1
	offset := 0

	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		raw := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Body {
				insertAt = offset
			}
		}
		offset += raw
	}

	if insertAt < 0 {
		out := make([]byte, 0, len(doc)+len(reloadTag))
		out = append(out, doc...)
		return append(out, reloadTag...)
	}

	out := make([]byte, 0, len(doc)+len(reloadTag))
	out = append(out, doc[:insertAt]...)
	out = append(out, reloadTag...)
	return append(out, doc[insertAt:]...)
}

// htmlInjector serves .html files from root with the reload client injected
// and hands everything else to next. Files on disk are never modified.
type htmlInjector struct {
	root string
	next http.Handler
}

func (h htmlInjector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(name, "/") || name == "/" {
		name = path.Join(name, "index.html")
	}
	if path.Ext(name) != ".html" {
		h.next.ServeHTTP(w, r)
		return
	}

	f, err := os.Open(filepath.Join(h.root, filepath.FromSlash(name)))
	if err != nil {
		h.next.ServeHTTP(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.next.ServeHTTP(w, r)
		return
	}

	doc, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), bytes.NewReader(InjectReloadScript(doc)))
}
