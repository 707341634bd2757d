package peerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/clocksync"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	ackTimeout = 10 * time.Second
)

// Client is a peer-side session connection. It implements the session
// handle the dispatcher sends intents through, mirrors broadcasts into
// the local machine, and routes notification-worthy events into the
// scheduler.
type Client struct {
	sessionID string
	clientID  shared.ClientID
	name      string
	log       *slog.Logger

	Machine   *arbitration.Machine
	Scheduler *arbitration.Scheduler
	Sampler   *clocksync.Sampler

	// OnStateChange observes every LocalRequestState transition, after the
	// scheduler has been updated. May be nil.
	OnStateChange func(arbitration.LocalRequestState)

	ws   *websocket.Conn
	send chan *arbitration.Message

	mu        sync.Mutex
	connected bool
	pending   map[string]*pendingAck
	queueLen  int
	lastRTT   time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

type pendingAck struct {
	fn    arbitration.AckFunc
	timer *time.Timer
}

type Config struct {
	BaseURL   string
	SessionID string
	ClientID  shared.ClientID
	Name      string

	Durations     arbitration.Durations
	Notifications arbitration.SchedulerConfig
}

func Dial(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = shared.ClientID(shared.NewID("client_"))
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	u.Path = "/v1/sessions/" + cfg.SessionID + "/ws"
	q := u.Query()
	q.Set("client_id", string(cfg.ClientID))
	q.Set("name", cfg.Name)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		sessionID: cfg.SessionID,
		clientID:  cfg.ClientID,
		name:      cfg.Name,
		log:       log.With("component", "peer_client", "client_id", cfg.ClientID),
		Sampler:   clocksync.NewSampler(nil),
		ws:        ws,
		send:      make(chan *arbitration.Message, 64),
		connected: true,
		pending:   make(map[string]*pendingAck),
		done:      make(chan struct{}),
	}

	c.Scheduler = arbitration.NewScheduler(clock.New(), cfg.Notifications, log)
	c.Machine = arbitration.NewMachine(cfg.ClientID, clock.New(), cfg.Durations, arbitration.MachineHooks{
		OnState:      c.onLocalState,
		OnRoleChange: c.onRoleChange,
		OnStale: func(got, last uint64) {
			c.log.Warn("stale broadcast dropped", "got_epoch", got, "last_epoch", last)
		},
	}, log)

	go c.readPump()
	go c.writePump()

	return c, nil
}

func (c *Client) ClientID() shared.ClientID {
	return c.clientID
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Dispatch sends one intent frame and registers its ack callback. The
// callback fires exactly once: on the matching ack frame, or with a
// failed ack when the coordinator does not answer in time.
func (c *Client) Dispatch(ctx context.Context, msg *arbitration.Message, ack arbitration.AckFunc) error {
	if !c.Connected() {
		return shared.ErrConnectionUnavailable
	}

	msg.ClientID = c.clientID
	msg.Timestamp = time.Now()

	// The acked decline is the only signal the decliner ever gets; the
	// declined broadcast goes to the offerer alone. Clear the offer banner
	// here, otherwise it stays visible forever.
	if msg.Type == arbitration.MessageTypeDeclineOffer && ack != nil {
		inner := ack
		ack = func(p arbitration.AckPayload) {
			if p.Success {
				c.Scheduler.Dismiss(arbitration.CategoryOfferReceived)
			}
			inner(p)
		}
	}

	if ack != nil {
		requestID := msg.RequestID
		p := &pendingAck{fn: ack}
		p.timer = time.AfterFunc(ackTimeout, func() {
			c.resolveAck(requestID, arbitration.AckPayload{
				Success: false,
				Code:    "timeout",
				Message: shared.ErrAckFailure.Error(),
			})
		})
		c.mu.Lock()
		c.pending[requestID] = p
		c.mu.Unlock()
	}

	select {
	case c.send <- msg:
		return nil
	case <-ctx.Done():
		c.dropAck(msg.RequestID)
		return ctx.Err()
	case <-c.done:
		c.dropAck(msg.RequestID)
		return shared.ErrConnectionUnavailable
	}
}

func (c *Client) resolveAck(requestID string, payload arbitration.AckPayload) {
	c.mu.Lock()
	p, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	p.timer.Stop()
	p.fn(payload)
}

func (c *Client) dropAck(requestID string) {
	c.mu.Lock()
	p, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if ok {
		p.timer.Stop()
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		pending := c.pending
		c.pending = make(map[string]*pendingAck)
		c.mu.Unlock()

		close(c.done)
		for _, p := range pending {
			p.timer.Stop()
		}
		err = c.ws.Close()
	})
	return err
}

func (c *Client) onLocalState(st arbitration.LocalRequestState) {
	switch st.Phase {
	case arbitration.PhaseResult, arbitration.PhaseError, arbitration.PhaseCancelled:
		c.Scheduler.ShowLocalResult(st)
	case arbitration.PhaseIdle:
		c.Scheduler.ClearLocalResult()
	}
	if c.OnStateChange != nil {
		c.OnStateChange(st)
	}
}

// onRoleChange clears every visible notification: banners from the old
// role are meaningless under the new one.
func (c *Client) onRoleChange(isController bool) {
	c.Scheduler.ResetAll()
	c.log.Info("controller role changed", "is_controller", isController)
}

func (c *Client) handleBroadcast(frame *arbitration.Frame) {
	ev, err := frame.Event()
	if err != nil {
		c.log.Error("bad broadcast", "type", frame.Type, "error", err)
		return
	}

	wasController := c.Machine.IsController()
	c.Machine.Apply(ev)

	switch ev.Type {
	case arbitration.MessageTypeRequestsUpdate:
		c.notifyQueueGrowth(ev, wasController)
	case arbitration.MessageTypeOfferReceived:
		c.Scheduler.OnEvent(arbitration.CategoryOfferReceived, ev)
	case arbitration.MessageTypeOfferSent:
		c.Scheduler.OnEvent(arbitration.CategoryOfferSent, ev)
	case arbitration.MessageTypeOfferAccepted:
		c.Scheduler.OnEvent(arbitration.CategoryOfferAccepted, ev)
	case arbitration.MessageTypeOfferDeclined:
		c.Scheduler.OnEvent(arbitration.CategoryOfferDeclined, ev)
	}
}

// notifyQueueGrowth surfaces new pending requests to the controller. Only
// additions notify; removals just shrink the tracked length.
func (c *Client) notifyQueueGrowth(ev arbitration.Event, wasController bool) {
	c.mu.Lock()
	prev := c.queueLen
	c.queueLen = len(ev.PendingRequests)
	c.mu.Unlock()

	if !wasController || !c.Machine.IsController() {
		return
	}
	if len(ev.PendingRequests) > prev {
		newest := ev.PendingRequests[len(ev.PendingRequests)-1]
		c.Scheduler.OnEvent(arbitration.CategoryRequestReceived, newest)
	}
}

func (c *Client) readPump() {
	defer c.Close()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(appData string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.onPong(appData)
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("read error", "error", err)
			}
			return
		}

		frame, err := arbitration.DecodeFrame(data)
		if err != nil {
			c.log.Error("bad frame", "error", err)
			continue
		}

		c.sampleClock(frame.Timestamp)

		if frame.Type == arbitration.MessageTypeAck {
			payload, err := frame.Ack()
			if err != nil {
				c.log.Error("bad ack payload", "error", err)
				continue
			}
			c.resolveAck(frame.RequestID, payload)
			continue
		}

		c.handleBroadcast(frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(msg)
			if err != nil {
				c.log.Error("marshal error", "error", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error("write error", "error", err)
				return
			}

		case <-ticker.C:
			c.sendPing()
			for i := c.Sampler.PendingSamples(); i > 0; i-- {
				c.sendPing()
			}
		}
	}
}

// sendPing stamps the send time into the ping payload; the pong echoes
// it back and the round trip is measured in onPong.
func (c *Client) sendPing() {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	payload := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := c.ws.WriteMessage(websocket.PingMessage, []byte(payload)); err != nil {
		c.log.Debug("ping failed", "error", err)
	}
}

func (c *Client) onPong(appData string) {
	sentNanos, err := strconv.ParseInt(appData, 10, 64)
	if err != nil {
		return
	}
	rtt := time.Since(time.Unix(0, sentNanos))

	c.mu.Lock()
	c.lastRTT = rtt
	c.mu.Unlock()
}

// sampleClock folds a server frame timestamp into the sampler using the
// most recent ping round trip as the transit estimate.
func (c *Client) sampleClock(remoteTS time.Time) {
	if remoteTS.IsZero() {
		return
	}
	c.mu.Lock()
	rtt := c.lastRTT
	c.mu.Unlock()
	if rtt <= 0 {
		return
	}
	c.Sampler.AddSample(rtt, remoteTS, time.Now().Add(-rtt))
}
