package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const styles = `
body{font-family:system-ui,sans-serif;background:#111;color:#eee;margin:0;padding:1.5rem}
h1{font-size:1.2rem;margin:0 0 1rem}
.grid{display:grid;grid-template-columns:repeat(3,minmax(0,1fr));gap:.75rem;max-width:1100px}
.cell{background:#1c1c1c;border:1px solid #333;border-radius:6px;padding:.5rem;min-height:180px;display:flex;flex-direction:column}
.cell.center{border-color:#6a9}
.cell img{width:100%;border-radius:4px}
.cell .label{font-size:.8rem;color:#aaa;margin-bottom:.25rem}
.cell .pending{flex:1;display:flex;align-items:center;justify-content:center;color:#666}
.cell.in-flight .pending{color:#6a9}
.locks button{margin-right:.25rem}
.locks button.locked{background:#444;color:#fff}
.toolbar{margin:1rem 0}
button{background:#222;color:#eee;border:1px solid #444;border-radius:4px;padding:.3rem .7rem;cursor:pointer}
`

// Layout wraps body in the shared page shell
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title><style>%s</style></head><body>`,
			templ.EscapeString(title), styles); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// Home is the landing page. It opens a session and redirects to it.
func Home() templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<h1>Variation Explorer</h1>
<p>Explore the neighborhood of a generation by varying seed, steps, guidance, sampler and prompt.</p>
<button id="start">New session</button>
<script>
document.getElementById("start").onclick = async () => {
  const res = await fetch("/api/v1/sessions", {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify({sync: true})});
  if (!res.ok) { alert("Failed to create session"); return; }
  const snap = await res.json();
  window.location = "/sessions/" + snap.session_id;
};
</script>`)
		return err
	})
	return Layout("Variation Explorer", body)
}
