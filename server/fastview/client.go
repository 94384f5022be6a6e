package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second

	// The rate at which updates are flushed to the client, so as not to overburden it.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// The number of pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// Client publishes updates unidirectionally to a browser over a websocket.
// Items in the updates chan must be idempotent: when they arrive faster than the
// publication rate only the latest pending item is sent, which is sufficient to
// bring the client up to date.
type Client[T any] struct {
	updates <-chan T
	ws      *websock
	rootCtx context.Context
	logger  logrus.FieldLogger
}

// NewClient upgrades the request to a websocket and returns a client publishing the passed updates.
// The client stops when ctx is cancelled; the request context is not watched since
// the connection is hijacked.
func NewClient[T any](
	ctx context.Context,
	updates <-chan T,
	w http.ResponseWriter,
	r *http.Request,
	logger logrus.FieldLogger,
) (*Client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}

	return &Client[T]{
		updates: updates,
		ws:      newWebSocket(ws),
		rootCtx: ctx,
		logger:  logger.WithField("remote", r.RemoteAddr),
	}, nil
}

// Sync runs the reader, the ping-pong liveness check and the publisher until the
// client disconnects, the updates chan closes, or an unexpected error occurs.
// It returns nil on a clean disconnect. The websocket is closed on return.
func (cli *Client[T]) Sync() error {
	defer cli.ws.Close()
	group, groupCtx := errgroup.WithContext(cli.rootCtx)

	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	// Unblock the reader once any routine finishes.
	go func() {
		<-groupCtx.Done()
		_ = cli.ws.Conn().SetReadDeadline(time.Now())
	}()
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})

	err := group.Wait()
	if isClosure(err) {
		cli.logger.Debug("client closed the websocket")
		return nil
	}
	return err
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// errPublisherDone stops the errgroup when there is nothing further to publish.
var errPublisherDone = errors.New("publisher done")

// pingPong runs the client liveness check. It requires readMessages to be
// running so that the pong handler is called.
func (cli *Client[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) error {
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
			return nil
		})
}

// readMessages drains messages from the client. Errors returned by websocket
// reads are permanent, hence any error triggers full teardown.
func (cli *Client[T]) readMessages(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if _, _, err := cli.ws.Conn().ReadMessage(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// publish writes the latest pending update at most once per pubResolution.
func (cli *Client[T]) publish(ctx context.Context) error {
	var pending *T
	flush := channerics.NewTicker(ctx.Done(), pubResolution)
	updates := cli.updates

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				// Send whatever is left, then stop.
				if pending != nil {
					if err := cli.write(ctx, *pending); err != nil {
						return err
					}
				}
				return errPublisherDone
			}
			pending = &update
		case <-flush:
			if pending == nil {
				break
			}
			if err := cli.write(ctx, *pending); err != nil {
				return err
			}
			pending = nil
		}
	}
}

func (cli *Client[T]) write(ctx context.Context, update T) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) error {
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("failed to set deadline: %w", err)
			}
			if err := ws.WriteJSON(update); err != nil {
				return fmt.Errorf("publish failed: %w", err)
			}
			return nil
		})
}

func isClosure(err error) bool {
	if errors.Is(err, errPublisherDone) {
		return true
	}
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && websocket.IsCloseError(
		closeErr,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const (
	writeDeadline    = time.Second
	closeGracePeriod = 100 * time.Millisecond
)

// websock serializes writes to the websocket, which allows only one concurrent writer.
// Reads happen on a single goroutine and need no serialization.
type websock struct {
	// A mutex, but channel semantics allow a deadline on acquisition.
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebSocket(ws *websocket.Conn) *websock {
	return &websock{
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the underlying websocket, for setup and for the single reader.
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close message and closes the connection.
func (sock *websock) Close() {
	sock.writeSem <- struct{}{}
	defer func() { <-sock.writeSem }()

	_ = sock.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	time.Sleep(closeGracePeriod)
	sock.ws.Close()
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
