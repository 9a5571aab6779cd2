package server

import (
	"bytes"
)

// reloadScript is appended to every HTML response in dynamic mode. It
// prefers the SSE stream and reloads the page on any event.
const reloadScript = `<script>
(function () {
  var source = new EventSource("/__thypress/reload");
  source.addEventListener("reload", function () { location.reload(); });
  source.onerror = function () {
    source.close();
    setTimeout(function () { location.reload(); }, 2000);
  };
})();
</script>`

var (
	closeBody = []byte("</body>")
	closeHTML = []byte("</html>")
)

// injectReload places the live-reload script into an HTML body: before
// </body>, else before </html>, else appended.
func injectReload(body []byte) []byte {
	script := []byte(reloadScript)
	if i := bytes.LastIndex(body, closeBody); i >= 0 {
		return spliceAt(body, i, script)
	}
	if i := bytes.LastIndex(body, closeHTML); i >= 0 {
		return spliceAt(body, i, script)
	}
	out := make([]byte, 0, len(body)+len(script))
	out = append(out, body...)
	return append(out, script...)
}

func spliceAt(body []byte, i int, insert []byte) []byte {
	out := make([]byte, 0, len(body)+len(insert))
	out = append(out, body[:i]...)
	out = append(out, insert...)
	return append(out, body[i:]...)
}
