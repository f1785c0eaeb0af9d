package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"codearena/internal/common/mq"
	"codearena/internal/contest/model"
	"codearena/internal/contest/service"
	"codearena/pkg/utils/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	frameSnapshot = "snapshot"
	frameUpdate   = "update"

	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	sendBacklog = 16
)

// Frame is what leaderboard subscribers receive.
type Frame struct {
	Type      string           `json:"type"`
	ContestID int64            `json:"contestId"`
	Standings []model.Standing `json:"standings"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan Frame
}

// LeaderboardHub fans leaderboard events out to websocket subscribers of each contest.
type LeaderboardHub struct {
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[int64]map[*subscriber]struct{}
}

func NewLeaderboardHub() *LeaderboardHub {
	return &LeaderboardHub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		subs:     make(map[int64]map[*subscriber]struct{}),
	}
}

// HandleEvent consumes one contest.leaderboard message.
func (h *LeaderboardHub) HandleEvent(ctx context.Context, message *mq.Message) error {
	var event service.LeaderboardEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		// Undecodable events cannot succeed on retry.
		logger.Warn(ctx, "drop malformed leaderboard event", zap.String("message_id", message.ID), zap.Error(err))
		return nil
	}
	h.Broadcast(Frame{Type: frameUpdate, ContestID: event.ContestID, Standings: event.Standings})
	return nil
}

// Broadcast queues frame for every subscriber of its contest. Slow subscribers are dropped.
func (h *LeaderboardHub) Broadcast(frame Frame) {
	h.mu.RLock()
	var slow []*subscriber
	for sub := range h.subs[frame.ContestID] {
		select {
		case sub.send <- frame:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range slow {
		h.remove(frame.ContestID, sub)
	}
}

// Subscribers reports how many connections watch contestID.
func (h *LeaderboardHub) Subscribers(contestID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[contestID])
}

// Serve upgrades the request and streams frames until the peer goes away.
func (h *LeaderboardHub) Serve(w http.ResponseWriter, r *http.Request, contestID int64, snapshot []model.Standing) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket failed: %w", err)
	}
	sub := &subscriber{conn: conn, send: make(chan Frame, sendBacklog)}
	sub.send <- Frame{Type: frameSnapshot, ContestID: contestID, Standings: snapshot}

	h.mu.Lock()
	if h.subs[contestID] == nil {
		h.subs[contestID] = make(map[*subscriber]struct{})
	}
	h.subs[contestID][sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(contestID, sub)
	h.readLoop(contestID, sub)
	return nil
}

// readLoop discards client frames and detects disconnects.
func (h *LeaderboardHub) readLoop(contestID int64, sub *subscriber) {
	defer h.remove(contestID, sub)
	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *LeaderboardHub) writeLoop(contestID int64, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteJSON(frame); err != nil {
				h.remove(contestID, sub)
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(contestID, sub)
				return
			}
		}
	}
}

func (h *LeaderboardHub) remove(contestID int64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[contestID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, contestID)
	}
	close(sub.send)
}
