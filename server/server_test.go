package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	. "github.com/smartystreets/goconvey/convey"

	"qpath/models"
	"qpath/server/fastview"
)

func testSnapshot(episode int) models.Snapshot {
	return models.Snapshot{
		Episode: episode,
		Kinds:   [][]models.CellKind{{models.START, models.FREE}, {models.HAZARD, models.GOAL}},
		Max:     [][]float64{{98, 99}, {0, 0}},
		Best:    [][]models.Action{{models.RIGHT, models.DOWN}, {models.UP, models.UP}},
		Path:    models.Path{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 1, Col: 1}},
	}
}

func TestHub(t *testing.T) {
	Convey("Given a hub", t, func() {
		h := newHub(testSnapshot(0))
		done := make(chan struct{})
		defer close(done)

		Convey("New subscribers start from the latest snapshot", func() {
			h.publish(testSnapshot(5))
			sub, unsubscribe := h.subscribe(done)
			defer unsubscribe()
			So((<-sub).Episode, ShouldEqual, 5)
		})

		Convey("A slow subscriber only sees the newest pending snapshot", func() {
			sub, unsubscribe := h.subscribe(done)
			defer unsubscribe()
			for episode := 1; episode <= 10; episode++ {
				h.publish(testSnapshot(episode))
			}
			So(h.latest().Episode, ShouldEqual, 10)

			// The primed snapshot and one value held by OrDone may arrive before the newest.
			last := -1
			timeout := time.After(time.Second)
			for last != 10 {
				select {
				case snapshot := <-sub:
					So(snapshot.Episode, ShouldBeGreaterThan, last)
					last = snapshot.Episode
				case <-timeout:
					t.Fatal("newest snapshot not received")
				}
			}
		})

		Convey("Unsubscribed channels are no longer published to", func() {
			_, unsubscribe := h.subscribe(done)
			unsubscribe()
			So(h.subs, ShouldBeEmpty)
		})
	})
}

func TestServer(t *testing.T) {
	logger, _ := test.NewNullLogger()

	Convey("Given a running server", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		snapshots := make(chan models.Snapshot)
		srv := NewServer(ctx, "", testSnapshot(0), snapshots, logger)
		httpServer := httptest.NewServer(srv.Handler())
		defer httpServer.Close()

		Convey("The snapshot api returns the latest snapshot", func() {
			snapshots <- testSnapshot(3)

			var snapshot models.Snapshot
			timeout := time.After(time.Second)
			for snapshot.Episode != 3 {
				resp, err := http.Get(httpServer.URL + "/api/snapshot")
				So(err, ShouldBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(json.NewDecoder(resp.Body).Decode(&snapshot), ShouldBeNil)
				resp.Body.Close()

				select {
				case <-timeout:
					t.Fatal("snapshot api not updated")
				default:
				}
			}
			So(snapshot.Kinds[1][0], ShouldEqual, models.HAZARD)
			So(snapshot.Path.Steps(), ShouldEqual, 2)
		})

		Convey("The index page renders the latest snapshot", func() {
			resp, err := http.Get(httpServer.URL + "/")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldEqual, "text/html")

			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, `<span id="status-path">2</span>`)
			So(string(body), ShouldContainSubstring, `id="1-1-rect"`)
		})

		Convey("Only GET is served for the index", func() {
			resp, err := http.Post(httpServer.URL+"/", "text/plain", strings.NewReader(""))
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Websocket clients receive element updates for new snapshots", func() {
			wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			go func() { snapshots <- testSnapshot(9) }()

			So(conn.SetReadDeadline(time.Now().Add(3*time.Second)), ShouldBeNil)
			episode := ""
			for episode != "9" {
				var updates []fastview.EleUpdate
				So(conn.ReadJSON(&updates), ShouldBeNil)
				for _, update := range updates {
					if update.EleId == "status-episode" {
						episode = update.Ops[0].Value
					}
				}
			}
			So(episode, ShouldEqual, "9")
		})
	})
}
