package cell_views

import (
	"html/template"
	"strconv"

	channerics "github.com/niceyeti/channerics/channels"

	"qpath/server/fastview"
)

// Status shows the training episode and the length of the current greedy path.
type Status struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewStatus(
	done <-chan struct{},
	grids <-chan CellGrid,
) (st *Status) {
	st = &Status{id: "status"}
	st.updates = channerics.Convert(done, grids, st.onUpdate)
	return
}

func (st *Status) Updates() <-chan []fastview.EleUpdate {
	return st.updates
}

func pathText(steps int) string {
	if steps < 0 {
		return "none"
	}
	return strconv.Itoa(steps)
}

func (st *Status) onUpdate(grid CellGrid) []fastview.EleUpdate {
	return []fastview.EleUpdate{
		{
			EleId: "status-episode",
			Ops:   []fastview.Op{{Key: "textContent", Value: strconv.Itoa(grid.Episode)}},
		},
		{
			EleId: "status-path",
			Ops:   []fastview.Op{{Key: "textContent", Value: pathText(grid.PathSteps)}},
		},
	}
}

func (st *Status) Parse(
	t *template.Template,
) (name string, err error) {
	name = st.id
	_, err = t.Funcs(template.FuncMap{"pathText": pathText}).Parse(
		`{{ define "` + name + `" }}
		<div id="` + st.id + `" style="font-family: monospace; padding: 8px;">
			Episode: <span id="status-episode">{{ .Episode }}</span>
			Greedy path steps: <span id="status-path">{{ pathText .PathSteps }}</span>
		</div>
		{{ end }}`)
	return
}
