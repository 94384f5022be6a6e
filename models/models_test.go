package models

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPath(t *testing.T) {
	Convey("Given a path", t, func() {
		path := Path{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 1, Col: 1}}

		Convey("Steps counts moves, not cells", func() {
			So(path.Steps(), ShouldEqual, 2)
			So(Path{}.Steps(), ShouldEqual, 0)
		})

		Convey("Contains finds only its own coordinates", func() {
			So(path.Contains(Coord{Row: 1, Col: 1}), ShouldBeTrue)
			So(path.Contains(Coord{Row: 1, Col: 0}), ShouldBeFalse)
		})
	})
}

func TestActions(t *testing.T) {
	Convey("Actions are indexed in a fixed order", t, func() {
		So(Actions, ShouldResemble, [NUM_ACTIONS]Action{UP, DOWN, LEFT, RIGHT})
		So(int(UP), ShouldEqual, 0)
		So(int(RIGHT), ShouldEqual, 3)
		So(string(LEFT.Arrow()), ShouldEqual, "<")
		So(Action(9).String(), ShouldEqual, "action(9)")
	})
}

func TestCellKindJson(t *testing.T) {
	Convey("Cell kinds are encoded as their characters", t, func() {
		data, err := json.Marshal([]CellKind{START, HAZARD, FREE, GOAL})
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, `["S","O","-","G"]`)

		var kinds []CellKind
		So(json.Unmarshal(data, &kinds), ShouldBeNil)
		So(kinds, ShouldResemble, []CellKind{START, HAZARD, FREE, GOAL})
	})

	Convey("Unknown characters are rejected", t, func() {
		var kinds []CellKind
		So(json.Unmarshal([]byte(`["X"]`), &kinds), ShouldNotBeNil)
		So(json.Unmarshal([]byte(`["SO"]`), &kinds), ShouldNotBeNil)
	})
}
