package cell_views

import (
	"fmt"
	"html/template"

	channerics "github.com/niceyeti/channerics/channels"

	"qpath/server/fastview"
)

// Cell size in pixels
const cellDim = 28

// ValuesGrid shows every cell's greedy value and greedy action as an arrow,
// colored by cell kind with the current greedy path highlighted.
type ValuesGrid struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewValuesGrid(
	done <-chan struct{},
	grids <-chan CellGrid,
) (vg *ValuesGrid) {
	vg = &ValuesGrid{id: "valuesgrid"}
	vg.updates = channerics.Convert(done, grids, vg.onUpdate)
	return
}

func (vg *ValuesGrid) Updates() <-chan []fastview.EleUpdate {
	return vg.updates
}

func cellId(cell Cell, what string) string {
	return fmt.Sprintf("%d-%d-%s", cell.Y, cell.X, what)
}

// Returns the set of view updates needed for the view to reflect the current values.
func (vg *ValuesGrid) onUpdate(grid CellGrid) (ops []fastview.EleUpdate) {
	for _, row := range grid.Cells {
		for _, cell := range row {
			ops = append(ops,
				fastview.EleUpdate{
					EleId: cellId(cell, "rect"),
					Ops:   []fastview.Op{{Key: "fill", Value: cell.Fill}},
				},
				fastview.EleUpdate{
					EleId: cellId(cell, "value-text"),
					Ops:   []fastview.Op{{Key: "textContent", Value: fmt.Sprintf("%.0f", cell.Max)}},
				},
				fastview.EleUpdate{
					EleId: cellId(cell, "policy-arrow"),
					Ops:   []fastview.Op{{Key: "transform", Value: fmt.Sprintf("rotate(%d)", cell.PolicyArrowRotation)}},
				},
			)
		}
	}
	return
}

// Parse defines the values grid template, which is executed with a CellGrid.
func (vg *ValuesGrid) Parse(
	t *template.Template,
) (name string, err error) {
	name = vg.id
	_, err = t.Parse(
		`{{ define "` + name + `" }}
		<div id="state_values">
			{{ $rows := len .Cells }}
			{{ $cell_dim := ` + fmt.Sprint(cellDim) + ` }}
			{{ $half := div $cell_dim 2 }}
			{{ $size := mult $cell_dim $rows }}
			<svg id="` + vg.id + `"
				width="{{ add $size 1 }}px"
				height="{{ add $size 1 }}px"
				style="shape-rendering: crispEdges; font-size: 8px;">
				{{ range $row := .Cells }}
					{{ range $cell := $row }}
					<g>
						<rect id="{{$cell.Y}}-{{$cell.X}}-rect"
							x="{{ mult $cell.X $cell_dim }}"
							y="{{ mult $cell.Y $cell_dim }}"
							width="{{ $cell_dim }}"
							height="{{ $cell_dim }}"
							fill="{{ $cell.Fill }}"
							stroke="black"
							stroke-width="1"/>
						<text id="{{$cell.Y}}-{{$cell.X}}-value-text"
							x="{{ add (mult $cell.X $cell_dim) $half }}"
							y="{{ add (mult $cell.Y $cell_dim) (sub $half 4) }}"
							dominant-baseline="middle" text-anchor="middle"
							>{{ printf "%.0f" $cell.Max }}</text>
						<g transform="translate({{ add (mult $cell.X $cell_dim) $half }}, {{ add (mult $cell.Y $cell_dim) (add $half 6) }})">
							<text id="{{$cell.Y}}-{{$cell.X}}-policy-arrow"
								dominant-baseline="central" text-anchor="middle"
								transform="rotate({{ $cell.PolicyArrowRotation }})"
								>&uarr;</text>
						</g>
					</g>
					{{ end }}
				{{ end }}
			</svg>
		</div>
		{{ end }}`)
	return
}
