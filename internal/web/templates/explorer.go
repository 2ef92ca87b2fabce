package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Conceptual-Machines/variation-explorer/internal/explore"
	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/a-h/templ"
)

// gridOrder places the center in the middle of a 3x3 grid. -1 is the center.
var gridOrder = []int{0, 1, 2, 3, -1, 4, 5, 6, 7}

var lockOrder = []models.LockField{
	models.LockSeed,
	models.LockSteps,
	models.LockGuidance,
	models.LockScheduler,
	models.LockPrompt,
}

// Explorer renders the grid for snap. The embedded script keeps it live over
// the session websocket.
func Explorer(snap explore.Snapshot) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		fmt.Fprintf(&b, `<h1>Session <code>%s</code></h1>`, templ.EscapeString(snap.SessionID))
		fmt.Fprintf(&b, `<p id="prompt">%s</p>`, templ.EscapeString(snap.Center.Prompt))

		b.WriteString(`<div class="toolbar"><button data-action="refresh">Refresh variations</button> `)
		b.WriteString(`<button data-action="cancel">Cancel</button> <span class="locks">`)
		for _, field := range lockOrder {
			class := ""
			if snap.Locks.Get(field) {
				class = "locked"
			}
			fmt.Fprintf(&b, `<button class="%s" data-lock="%s">%s</button>`, class, field, field)
		}
		fmt.Fprintf(&b, `</span> <span id="state">%s</span></div>`, snap.State)

		b.WriteString(`<div class="grid" id="grid">`)
		for _, i := range gridOrder {
			if i < 0 {
				writeCenter(&b, snap)
				continue
			}
			if i < len(snap.Cells) {
				writeCell(&b, i, snap.Cells[i])
			} else {
				fmt.Fprintf(&b, `<div class="cell" data-index="%d"><div class="pending">empty</div></div>`, i)
			}
		}
		b.WriteString(`</div>`)
		fmt.Fprintf(&b, `<script>const SESSION_ID=%q;</script><script>%s</script>`, snap.SessionID, liveScript)

		_, err := io.WriteString(w, b.String())
		return err
	})
	return Layout("Variation Explorer", body)
}

func writeCenter(b *strings.Builder, snap explore.Snapshot) {
	class := "cell center"
	if snap.CenterInFlight {
		class += " in-flight"
	}
	fmt.Fprintf(b, `<div class="%s"><div class="label">Center · %s</div>`, class, describe(snap.Center))
	writeAsset(b, snap.CenterAsset, snap.CenterInFlight)
	b.WriteString(`</div>`)
}

func writeCell(b *strings.Builder, i int, cell models.Cell) {
	class := "cell"
	if cell.InFlight {
		class += " in-flight"
	}
	fmt.Fprintf(b, `<div class="%s" data-index="%d"><div class="label">%s · %s</div>`,
		class, i, templ.EscapeString(cell.Label), describe(cell.Params))
	writeAsset(b, cell.Asset, cell.InFlight)
	fmt.Fprintf(b, `<button data-promote="%d">Promote</button></div>`, i)
}

func writeAsset(b *strings.Builder, asset *string, inFlight bool) {
	switch {
	case asset != nil:
		fmt.Fprintf(b, `<img src="%s" alt="">`, templ.EscapeString(*asset))
	case inFlight:
		b.WriteString(`<div class="pending">rendering…</div>`)
	default:
		b.WriteString(`<div class="pending">pending</div>`)
	}
}

func describe(p models.ParameterSet) string {
	return templ.EscapeString(fmt.Sprintf("seed %d · %d steps · cfg %.1f · %s", p.Seed, p.Steps, p.GuidanceScale, p.Sampler))
}

const liveScript = `
(function(){
  const proto = location.protocol === "https:" ? "wss" : "ws";
  const ws = new WebSocket(proto + "://" + location.host + "/api/v1/sessions/" + SESSION_ID + "/ws");
  const order = [0,1,2,3,-1,4,5,6,7];
  const esc = s => String(s).replace(/[&<>"']/g, c => ({"&":"&amp;","<":"&lt;",">":"&gt;","\"":"&quot;","'":"&#39;"}[c]));
  const desc = p => esc("seed " + p.seed + " · " + p.steps + " steps · cfg " + p.guidance_scale.toFixed(1) + " · " + p.sampler);
  const asset = (a, busy) => a ? '<img src="' + esc(a) + '" alt="">' : '<div class="pending">' + (busy ? "rendering…" : "pending") + '</div>';
  let version = 0;
  function render(s) {
    if (s.version < version) return;
    version = s.version;
    document.getElementById("state").textContent = s.state;
    document.getElementById("prompt").textContent = s.center.prompt;
    document.querySelectorAll("[data-lock]").forEach(b => b.classList.toggle("locked", !!s.locks[b.dataset.lock]));
    document.getElementById("grid").innerHTML = order.map(i => {
      if (i < 0) return '<div class="cell center' + (s.center_in_flight ? " in-flight" : "") + '"><div class="label">Center · ' + desc(s.center) + '</div>' + asset(s.center_asset, s.center_in_flight) + '</div>';
      const c = (s.cells || [])[i];
      if (!c) return '<div class="cell"><div class="pending">empty</div></div>';
      return '<div class="cell' + (c.in_flight ? " in-flight" : "") + '"><div class="label">' + esc(c.label) + ' · ' + desc(c.params) + '</div>' + asset(c.asset, c.in_flight) + '<button data-promote="' + i + '">Promote</button></div>';
    }).join("");
  }
  ws.onmessage = e => {
    const m = JSON.parse(e.data);
    if (m.type === "snapshot") render(m.snapshot);
    if (m.type === "error") console.warn(m.error);
  };
  document.addEventListener("click", e => {
    const t = e.target;
    if (t.dataset.action) ws.send(JSON.stringify({action: t.dataset.action}));
    if (t.dataset.lock) ws.send(JSON.stringify({action: "toggle_lock", field: t.dataset.lock}));
    if (t.dataset.promote) ws.send(JSON.stringify({action: "promote", index: Number(t.dataset.promote)}));
  });
})();
`
