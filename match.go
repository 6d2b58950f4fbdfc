// Retropong web matches
//
// Each match lives at /pong/:matchid and runs its simulation on the server. The
// browser only renders frames and reports which keys are held.
//
// Features:
// - WebSockets per match ID: /pong/:matchid and /pong/:matchid/ws
// - First connection to a match becomes host: left paddle, start/pause/stop
// - Second player (by cookie) becomes guest and drives the right paddle in
//   two player mode; everyone after that spectates
// - Without a guest, the host's I/K keys drive the right paddle
// - Guest seat is held for --player-timeout after a disconnect
// - Matches auto-reaped after configurable idle timeout
// - Random 8-char match IDs via crypto/rand, with server-side collision check
// - Logged-in hosts who win get their score on the leaderboard
// - In-browser QR button to share the current match, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/retropong/persist"
	"github.com/Seednode/retropong/pong"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	clientBuffer   = 32
	maxMessageSize = 4096
	submitTimeout  = 5 * time.Second
)

type role string

const (
	roleHost      role = "host"
	roleGuest     role = "guest"
	roleSpectator role = "spectator"
)

// Messages coming from clients
type ClientMessage struct {
	Type string   `json:"type"`           // "keys" or a match command
	Mode string   `json:"mode,omitempty"` // start
	Held []string `json:"held,omitempty"` // keys
}

// FieldInfo is the static geometry a client needs to draw the match.
type FieldInfo struct {
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	WinningScore int     `json:"winning_score"`
}

// SessionInfoMessage is sent immediately on connect so the client knows
// what it may do in this match.
type SessionInfoMessage struct {
	Type     string        `json:"type"` // "session_info"
	MatchID  string        `json:"match_id"`
	Role     role          `json:"role"`
	Player   string        `json:"player,omitempty"` // display name when logged in
	HasGuest bool          `json:"has_guest"`
	Field    FieldInfo     `json:"field"`
	Frame    pong.Snapshot `json:"frame"`
}

type FrameMessage struct {
	Type  string        `json:"type"` // "frame"
	Frame pong.Snapshot `json:"frame"`
}

type ScoreMessage struct {
	Type  string          `json:"type"` // "score"
	Score pong.ScoreEvent `json:"score"`
}

// MatchEndMessage announces the winner. Saved is true when the score is being
// submitted to the leaderboard.
type MatchEndMessage struct {
	Type    string       `json:"type"` // "match_end"
	Outcome pong.Outcome `json:"outcome"`
	Label   string       `json:"label"`
	Saved   bool         `json:"saved"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	account  *persist.Account
	role     role
}

type clientMessage struct {
	client *Client
	msg    ClientMessage
}

// hubInput feeds held keys to the match. Only the hub goroutine touches it.
type hubInput struct {
	host     pong.KeySet
	guest    pong.KeySet
	hasGuest bool
}

func (in *hubInput) Keys(side pong.Side) pong.KeyState {
	if side == pong.Right && in.hasGuest {
		return pong.Alias{Keys: in.guest, Aliases: pong.GuestAliases}
	}
	return in.host
}

type Hub struct {
	id     string
	log    *zap.Logger
	scores persist.Scores

	match *pong.Match
	sched *pong.Scheduler
	input *hubInput

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	inbox    chan clientMessage
	expire   chan string
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	playerTimeout time.Duration

	createdAt time.Time

	mu         sync.RWMutex
	lastActive time.Time

	hostID      string
	guestID     string
	hostAccount *persist.Account
}

func newHub(cfg *Config, log *zap.Logger, rules pong.Rules, scores persist.Scores, matchID string) (*Hub, error) {
	now := time.Now()

	h := &Hub{
		id:     matchID,
		log:    log.With(zap.String("match", matchID)),
		scores: scores,
		sched:  pong.NewScheduler(pong.TickInterval(cfg.tickRate)),
		input: &hubInput{
			host:  pong.NewKeySet(),
			guest: pong.NewKeySet(),
		},
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unreg:         make(chan *Client),
		inbox:         make(chan clientMessage),
		expire:        make(chan string),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		playerTimeout: cfg.playerTimeout,
		createdAt:     now,
		lastActive:    now,
	}

	m, err := pong.NewMatch(rules,
		pong.WithSink(h),
		pong.WithInput(h.input),
		pong.WithErrorHandler(func(err error) {
			h.log.Error("GAMES: ai script failed", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}
	h.match = m

	return h, nil
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() { _ = h.match.Close() }()
	defer h.sched.Stop()

	for {
		h.sched.Sync(h.match.Status())

		select {
		case c := <-h.register:
			h.touch()
			h.handleRegister(c)

		case c := <-h.unreg:
			h.touch()
			h.handleUnregister(c)

		case cm := <-h.inbox:
			h.touch()
			h.handleMessage(cm.client, cm.msg)

		case id := <-h.expire:
			h.handleExpire(id)

		case <-h.sched.C():
			h.match.Tick()

		case <-h.quit:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

// stop ends the hub goroutine and disconnects everyone.
func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

func (h *Hub) assignRole(playerID string) role {
	switch {
	case h.hostID == "" || h.hostID == playerID:
		h.hostID = playerID
		return roleHost
	case h.guestID == "" || h.guestID == playerID:
		h.guestID = playerID
		h.input.hasGuest = true
		return roleGuest
	default:
		return roleSpectator
	}
}

func (h *Hub) handleRegister(c *Client) {
	c.role = h.assignRole(c.playerID)
	if c.role == roleHost {
		h.hostAccount = c.account
	}

	h.clients[c] = true

	info := SessionInfoMessage{
		Type:     "session_info",
		MatchID:  h.id,
		Role:     c.role,
		HasGuest: h.guestID != "",
		Field: FieldInfo{
			Width:        h.match.Rules().FieldWidth,
			Height:       h.match.Rules().FieldHeight,
			WinningScore: h.match.Rules().WinningScore,
		},
		Frame: h.match.Snapshot(),
	}
	if c.account != nil {
		info.Player = c.account.DisplayName
	}
	c.send <- info

	h.log.Debug("GAMES: client joined",
		zap.String("role", string(c.role)),
		zap.Int("clients", len(h.clients)),
	)
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}

	if h.connected(c.playerID) {
		return
	}

	switch c.role {
	case roleHost:
		clear(h.input.host)
		h.match.Pause()
	case roleGuest:
		clear(h.input.guest)
		h.scheduleRemoval(c.playerID)
	}

	h.log.Debug("GAMES: client left",
		zap.String("role", string(c.role)),
		zap.Int("clients", len(h.clients)),
	)
}

func (h *Hub) connected(playerID string) bool {
	for client := range h.clients {
		if client.playerID == playerID {
			return true
		}
	}
	return false
}

// scheduleRemoval frees the guest seat after the player timeout unless the
// guest has come back by then.
func (h *Hub) scheduleRemoval(playerID string) {
	time.AfterFunc(h.playerTimeout, func() {
		select {
		case h.expire <- playerID:
		case <-h.done:
		}
	})
}

func (h *Hub) handleExpire(playerID string) {
	if playerID != h.guestID || h.connected(playerID) {
		return
	}

	h.guestID = ""
	h.input.hasGuest = false
	clear(h.input.guest)

	h.log.Debug("GAMES: guest seat released")
}

func (h *Hub) handleMessage(c *Client, msg ClientMessage) {
	if msg.Type == "keys" {
		switch c.role {
		case roleHost:
			h.input.host.Replace(msg.Held)
		case roleGuest:
			h.input.guest.Replace(msg.Held)
		}
		return
	}

	if c.role != roleHost {
		h.sendTo(c, ErrorMessage{Type: "error", Message: "Only the host can control the match."})
		return
	}

	cmd, err := pong.ParseCommand(msg.Type, msg.Mode)
	if err == nil {
		err = h.match.Apply(cmd)
	}
	if err != nil {
		h.sendTo(c, ErrorMessage{Type: "error", Message: err.Error()})
		return
	}

	h.log.Debug("GAMES: command",
		zap.String("command", msg.Type),
		zap.Stringer("status", h.match.Status()),
	)
}

// Frame is called by the match on every tick and state change.
func (h *Hub) Frame(s pong.Snapshot) {
	msg := FrameMessage{Type: "frame", Frame: s}

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// frames are lossy; a slow client just misses one
		}
	}
}

func (h *Hub) Score(e pong.ScoreEvent) {
	h.broadcast(ScoreMessage{Type: "score", Score: e})
}

func (h *Hub) MatchEnded(o pong.Outcome) {
	saved := o.Winner == pong.Left && h.hostAccount != nil

	h.broadcast(MatchEndMessage{
		Type:    "match_end",
		Outcome: o,
		Label:   o.Mode.Label(),
		Saved:   saved,
	})

	h.log.Info("GAMES: match ended",
		zap.Stringer("winner", o.Winner),
		zap.Int("left", o.Left),
		zap.Int("right", o.Right),
		zap.Stringer("mode", o.Mode),
	)

	if !saved {
		return
	}

	score := persist.Score{
		PlayerName: h.hostAccount.DisplayName,
		Score:      o.WinnerScore(),
		Mode:       o.Mode.String(),
	}
	if !h.hostAccount.Demo {
		score.UserID = h.hostAccount.ID
	}

	go h.submitScore(score)
}

// submitScore runs off the hub goroutine so a slow database never stalls the
// match.
func (h *Hub) submitScore(s persist.Score) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	if err := h.scores.SubmitScore(ctx, s); err != nil {
		h.log.Error("GAMES: score submission failed", zap.Error(err))
		return
	}

	h.log.Info("GAMES: score saved",
		zap.String("player", s.PlayerName),
		zap.Int("score", s.Score),
	)
}

func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		h.sendTo(client, msg)
	}
}

func (h *Hub) sendTo(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// closeAll disconnects all clients of this hub.
func (h *Hub) closeAll() {
	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "retropong_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id, err := randomToken(16)
	if err != nil {
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// GameManager holds a set of hubs keyed by match ID, so each /pong/:matchid
// is its own isolated match.
type GameManager struct {
	cfg    *Config
	log    *zap.Logger
	rules  pong.Rules
	scores persist.Scores

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	quit        chan struct{}
	closeOnce   sync.Once
}

func newGameManager(cfg *Config, log *zap.Logger, rules pong.Rules, scores persist.Scores) *GameManager {
	gm := &GameManager{
		cfg:         cfg,
		log:         log,
		rules:       rules,
		scores:      scores,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
		quit:        make(chan struct{}),
	}
	if gm.idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(matchID string) (*Hub, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[matchID]; ok {
		return hub, nil
	}

	hub, err := newHub(gm.cfg, gm.log, gm.rules, gm.scores, matchID)
	if err != nil {
		return nil, err
	}
	gm.hubs[matchID] = hub
	go hub.run()

	gm.log.Info("GAMES: match opened", zap.String("match", matchID))

	return hub, nil
}

const matchIDLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newMatchID generates a crypto-random match ID and ensures it doesn't
// collide with existing matches.
func (gm *GameManager) newMatchID() string {
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = matchIDLetters[int(buf[i])%len(matchIDLetters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

func validMatchID(id string) bool {
	if id == "" || len(id) > 32 {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune(matchIDLetters, r) {
			return false
		}
	}
	return true
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-gm.quit:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			if hub.idleSince().Before(cutoff) {
				delete(gm.hubs, id)
				hub.stop()
				gm.log.Info("GAMES: match reaped",
					zap.String("match", id),
					zap.Duration("age", time.Since(hub.createdAt).Round(time.Second)),
				)
			}
		}
		gm.mu.Unlock()
	}
}

// Close stops the reaper and every match.
func (gm *GameManager) Close() {
	gm.closeOnce.Do(func() { close(gm.quit) })

	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		delete(gm.hubs, id)
		hub.stop()
	}
}

// WebSocket handler that picks the hub based on :matchid
func serveWSForManager(gm *GameManager, sessions *sessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		matchID := ps.ByName("matchid")
		if !validMatchID(matchID) {
			http.Error(w, "invalid match id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub, err := gm.getHub(matchID)
		if err != nil {
			gm.log.Error("GAMES: unable to open match", zap.String("match", matchID), zap.Error(err))
			http.Error(w, "unable to open match", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			gm.log.Debug("GAMES: upgrade failed", zap.Error(err))
			return
		}
		conn.SetReadLimit(maxMessageSize)

		client := &Client{
			conn:     conn,
			send:     make(chan any, clientBuffer),
			playerID: playerID,
		}
		if acct, ok := sessions.fromRequest(r); ok {
			client.account = &acct
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.log.Debug("GAMES: read failed", zap.Error(err))
			}
			return
		}

		select {
		case h.inbox <- clientMessage{client: c, msg: msg}:
		case <-h.done:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current match URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !validMatchID(ps.ByName("matchid")) {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveMatchPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validMatchID(ps.ByName("matchid")) {
			http.NotFound(w, r)
			return
		}

		data, err := assets.ReadFile("assets/pong/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(data)
	}
}

// redirectNewMatch handles GET /pong by generating a new random match ID
// and redirecting to /pong/:matchid.
func redirectNewMatch(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		matchID := gm.newMatchID()
		gm.log.Debug("GAMES: new match link", zap.String("match", matchID), zap.String("client", realIP(r)))
		http.Redirect(w, r, cfg.prefix+path+"/"+matchID, http.StatusTemporaryRedirect)
	}
}

// registerPongGame sets up routes so that:
//   - $path                  → redirects to new random match (8-char ID)
//   - $path/:matchid         → HTML client
//   - $path/:matchid/ws      → WebSocket for that match
//   - $path/:matchid/qr      → PNG QR code for that match URL
func registerPongGame(cfg *Config, log *zap.Logger, rules pong.Rules, scores persist.Scores, sessions *sessionStore, path string, mux *httprouter.Router) *GameManager {
	gm := newGameManager(cfg, log, rules, scores)

	mux.GET(cfg.prefix+path, redirectNewMatch(cfg, path, gm))
	mux.GET(cfg.prefix+path+"/:matchid", serveMatchPage(cfg))
	mux.GET(cfg.prefix+path+"/:matchid/ws", serveWSForManager(gm, sessions))
	mux.GET(cfg.prefix+path+"/:matchid/qr", qrHandler)

	return gm
}
