package server

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const reloadScript = `(function() {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  function connect() {
    var ws = new WebSocket(proto + location.host + %q);
    ws.onmessage = function(event) {
      var msg = JSON.parse(event.data);
      if (msg.type === "reload") {
        location.reload();
      } else if (msg.type === "build_failed") {
        console.warn("htmlc: build failed with " + msg.failures + " error(s)");
      }
    };
    ws.onclose = function() { setTimeout(connect, 1000); };
  }
  connect();
})();`

// InjectReloadScript returns doc with a live-reload script appended to its
// body. Documents without a body element get one from the parser.
func InjectReloadScript(doc []byte, wsPath string) ([]byte, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	body := findElement(root, atom.Body)
	if body == nil {
		return nil, fmt.Errorf("parsing html: no body element")
	}

	script := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr:     []html.Attribute{{Key: "data-htmlc", Val: "reload"}},
	}
	script.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: fmt.Sprintf(reloadScript, wsPath),
	})
	body.AppendChild(script)

	var out bytes.Buffer
	if err := html.Render(&out, root); err != nil {
		return nil, fmt.Errorf("rendering html: %w", err)
	}

	return out.Bytes(), nil
}

// HasReloadScript reports whether doc already carries the injected script.
func HasReloadScript(doc []byte) bool {
	return strings.Contains(string(doc), `data-htmlc="reload"`)
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}

	return nil
}
