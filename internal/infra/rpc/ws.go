package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dex_go/internal/infra"
)

const (
	maxRetries   = 10
	readTimeout  = 120 * time.Second
	pingInterval = 30 * time.Second
)

// WSWorker maintains a websocket connection to a node and multiplexes
// account subscriptions over it. It implements stream.Subscriber.
type WSWorker struct {
	url    string
	logger *slog.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	subMu     sync.Mutex
	nextReqID uint64
	subs      map[string]*wsSub // by address
	pending   map[uint64]string // request id -> address
	bySubID   map[uint64]string // server subscription id -> address
}

type wsSub struct {
	address  string
	onUpdate func(data []byte)
	serverID uint64
	active   bool
}

// NewWSWorker creates a worker for the given websocket endpoint.
func NewWSWorker(url string, logger *slog.Logger) *WSWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSWorker{
		url:     url,
		logger:  logger.With("module", "ws_worker"),
		subs:    make(map[string]*wsSub),
		pending: make(map[uint64]string),
		bySubID: make(map[uint64]string),
	}
}

// Connect starts the connection loop.
func (w *WSWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *WSWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.logger.Warn("node connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			infra.GlobalMetrics.RecordWSReconnect()
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.resubscribeAll(); err != nil {
		w.closeConnection()
		return err
	}

	w.logger.Info("node connected", slog.String("url", w.url))
	return nil
}

// resubscribeAll replays subscribe requests for every registered account.
// Called after every (re)connect; previous server-side subscription ids
// are gone with the old connection.
func (w *WSWorker) resubscribeAll() error {
	w.subMu.Lock()
	w.pending = make(map[uint64]string)
	w.bySubID = make(map[uint64]string)
	addresses := make([]string, 0, len(w.subs))
	for addr, sub := range w.subs {
		sub.active = false
		sub.serverID = 0
		addresses = append(addresses, addr)
	}
	w.subMu.Unlock()

	for _, addr := range addresses {
		if err := w.sendSubscribe(addr); err != nil {
			return err
		}
	}
	return nil
}

func (w *WSWorker) sendSubscribe(address string) error {
	w.subMu.Lock()
	w.nextReqID++
	id := w.nextReqID
	w.pending[id] = address
	w.subMu.Unlock()

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "accountSubscribe",
		"params":  []any{address, map[string]any{"encoding": "base64"}},
	}
	b, _ := json.Marshal(req)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *WSWorker) sendUnsubscribe(serverID uint64) error {
	w.subMu.Lock()
	w.nextReqID++
	id := w.nextReqID
	w.subMu.Unlock()

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "accountUnsubscribe",
		"params":  []any{serverID},
	}
	b, _ := json.Marshal(req)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *WSWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *WSWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		if w.conn == nil {
			w.mu.RUnlock()
			return
		}
		w.conn.SetReadDeadline(time.Now().Add(readTimeout))
		w.mu.RUnlock()

		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

// wsMessage covers both subscribe responses (ID + Result) and
// account notifications (Method + Params).
type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Value struct {
				Data []string `json:"data"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (w *WSWorker) handleMessage(msg []byte) {
	var m wsMessage
	if json.Unmarshal(msg, &m) != nil {
		return
	}

	if m.Method == "accountNotification" {
		w.dispatchNotification(&m)
		return
	}

	if m.ID == 0 || m.Result == nil {
		return
	}

	// Subscribe confirmation: result carries the server subscription id.
	var serverID uint64
	if json.Unmarshal(m.Result, &serverID) != nil {
		return
	}

	w.subMu.Lock()
	defer w.subMu.Unlock()
	addr, ok := w.pending[m.ID]
	if !ok {
		return
	}
	delete(w.pending, m.ID)
	sub, ok := w.subs[addr]
	if !ok {
		// Unsubscribed before the confirmation arrived.
		go w.sendUnsubscribe(serverID)
		return
	}
	sub.serverID = serverID
	sub.active = true
	w.bySubID[serverID] = addr
}

func (w *WSWorker) dispatchNotification(m *wsMessage) {
	if len(m.Params.Result.Value.Data) == 0 {
		return
	}
	data, err := base64.StdEncoding.DecodeString(m.Params.Result.Value.Data[0])
	if err != nil {
		w.logger.Warn("bad account payload", slog.Any("error", err))
		return
	}

	w.subMu.Lock()
	addr, ok := w.bySubID[m.Params.Subscription]
	var onUpdate func([]byte)
	if ok {
		if sub, exists := w.subs[addr]; exists {
			onUpdate = sub.onUpdate
		}
	}
	w.subMu.Unlock()

	if onUpdate != nil {
		onUpdate(data)
	}
}

// SubscribeAccount registers a callback for account changes. The returned
// function tears the subscription down. Safe to call before the connection
// is up; the subscribe request is replayed on connect.
func (w *WSWorker) SubscribeAccount(ctx context.Context, address string, onUpdate func(data []byte)) (func(), error) {
	w.subMu.Lock()
	if _, exists := w.subs[address]; exists {
		w.subMu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", address)
	}
	w.subs[address] = &wsSub{address: address, onUpdate: onUpdate}
	w.subMu.Unlock()

	w.mu.RLock()
	connected := w.connected
	w.mu.RUnlock()

	if connected {
		if err := w.sendSubscribe(address); err != nil {
			// The connection loop will replay on reconnect; keep the sub.
			w.logger.Warn("subscribe send failed", slog.String("address", address), slog.Any("error", err))
		}
	}

	return func() {
		w.subMu.Lock()
		sub, ok := w.subs[address]
		if !ok {
			w.subMu.Unlock()
			return
		}
		delete(w.subs, address)
		var serverID uint64
		if sub.active {
			serverID = sub.serverID
			delete(w.bySubID, serverID)
		}
		w.subMu.Unlock()

		if serverID != 0 {
			if err := w.sendUnsubscribe(serverID); err != nil {
				w.logger.Debug("unsubscribe send failed", slog.String("address", address), slog.Any("error", err))
			}
		}
	}, nil
}

func (w *WSWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect stops the worker and waits for its goroutines.
func (w *WSWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
