package web

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// AdminGame renders the read-only admin page of one game and subscribes to
// its live event feed.
func AdminGame(data AdminData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		code := templ.EscapeString(data.Game.Code)
		var b strings.Builder
		b.WriteString(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Secret Santa · ` + code + `</title>
  </head>
  <body>
    <main class="shell">
      <header>
        <h1>Game ` + code + `</h1>
        <p>Created by ` + templ.EscapeString(data.CreatorName) + ` at ` + formatTime(data.Game.CreatedAt) + `</p>
      </header>
      <section class="panel">
        <dl>
          <dt>Participants</dt><dd id="participantCount">` + itoa(data.Game.Participants) + `</dd>
          <dt>Draw done</dt><dd id="drawDone">` + yesNo(data.Game.DrawDone) + `</dd>
          <dt>Paired</dt><dd>` + itoa(data.PairedCount()) + `</dd>
          <dt>Gifts bought</dt><dd>` + itoa(data.GiftsBought()) + `</dd>
        </dl>
      </section>
      <section class="panel">
        <h2>Participants</h2>
        <table>
          <thead><tr><th>Name</th><th>Wish</th><th>Paired</th><th>Gift bought</th><th>Joined</th></tr></thead>
          <tbody>`)
		if len(data.Participants) == 0 {
			b.WriteString(`<tr><td colspan="5">Nobody has joined yet.</td></tr>`)
		}
		for _, p := range data.Participants {
			b.WriteString(`<tr><td>` + templ.EscapeString(p.Name) + `</td><td>` + yesNo(p.HasWish) + `</td><td>` +
				yesNo(p.Paired) + `</td><td>` + yesNo(p.GiftBought) + `</td><td>` + formatTime(p.JoinedAt) + `</td></tr>`)
		}
		b.WriteString(`</tbody>
        </table>
      </section>
      <section class="panel">
        <h2>Events</h2>`)
		if data.InMemory {
			b.WriteString(`<p>Event history needs a database; live events still appear below.</p>`)
		}
		b.WriteString(`<ul id="events">`)
		for _, ev := range data.Events {
			line := formatTime(ev.CreatedAt) + " " + ev.Type
			if ev.UserID != 0 {
				line += " user " + i64toa(ev.UserID)
			}
			b.WriteString(`<li>` + templ.EscapeString(line) + `</li>`)
		}
		b.WriteString(`</ul>
      </section>
    </main>
    <script>
      const events = document.getElementById("events");
      const scheme = location.protocol === "https:" ? "wss://" : "ws://";
      const socket = new WebSocket(scheme + location.host + "/ws/games/` + code + `" + location.search);
      socket.addEventListener("message", (msg) => {
        const ev = JSON.parse(msg.data);
        const item = document.createElement("li");
        item.textContent = ev.at + " " + ev.type + (ev.user_id ? " user " + ev.user_id : "");
        events.prepend(item);
        if (ev.type === "participant_joined" && ev.count) {
          document.getElementById("participantCount").textContent = ev.count;
        }
        if (ev.type === "draw_completed") {
          document.getElementById("drawDone").textContent = "yes";
        }
      });
    </script>
  </body>
</html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}
