package eventfeed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/duel-referee/internal/events"
	"github.com/park285/duel-referee/internal/obslog"
)

// Feed fans session events out to websocket subscribers. Events arrive on
// the Redis pub/sub channel and are delivered verbatim; a slow subscriber is
// dropped rather than allowed to back up the hub.
type Feed struct {
	rdb *redis.Client

	subsM sync.Mutex
	subs  map[chan []byte]struct{}

	httpSrv *http.Server
}

func NewFeed(rdb *redis.Client) *Feed {
	return &Feed{
		rdb:  rdb,
		subs: make(map[chan []byte]struct{}),
	}
}

// Run subscribes to the event channel and serves websocket clients on addr
// until ctx is cancelled.
func (f *Feed) Run(ctx context.Context, addr string) error {
	pubsub := f.rdb.Subscribe(ctx, events.Channel)
	defer pubsub.Close()

	go f.pump(ctx, pubsub)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", f.handleWS)
	f.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket writes manage their own deadlines
	}

	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("eventfeed_listening", zap.String("addr", addr))
		errCh <- f.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = f.httpSrv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// pump moves messages from Redis into every subscriber buffer.
func (f *Feed) pump(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			f.broadcast([]byte(msg.Payload))
		}
	}
}

func (f *Feed) broadcast(payload []byte) {
	f.subsM.Lock()
	defer f.subsM.Unlock()
	for sub := range f.subs {
		select {
		case sub <- payload:
		default:
			// 구독자 적체시 탈락
			close(sub)
			delete(f.subs, sub)
		}
	}
}

func (f *Feed) subscribe() chan []byte {
	sub := make(chan []byte, 64)
	f.subsM.Lock()
	f.subs[sub] = struct{}{}
	f.subsM.Unlock()
	return sub
}

func (f *Feed) unsubscribe(sub chan []byte) {
	f.subsM.Lock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		close(sub)
	}
	f.subsM.Unlock()
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("eventfeed_accept_error", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusGoingAway, "feed closing")

	sub := f.subscribe()
	defer f.unsubscribe(sub)

	ctx := r.Context()
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case payload, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
