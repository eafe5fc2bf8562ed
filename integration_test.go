package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ---------- helpers ----------

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func testConfig() *Config {
	return &Config{
		Server: ServerConfig{PublicURL: "http://kickoff.test", MaxLobbies: 10, MaxConnsPerIP: 20},
		Auth:   AuthConfig{Secret: "test-secret", InviteTTL: time.Hour},
	}
}

// startTestServer spins up an httptest.Server with a Hub backed by a
// throwaway database and returns the server and its WebSocket URL.
func startTestServer(t *testing.T) (*httptest.Server, string, *Hub) {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	hub := NewHub(testConfig(), db)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		db.Close()
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL, hub
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads the next JSON message, skipping binary frames.
func readEnvelope(t *testing.T, conn *websocket.Conn) InEnvelope {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		var env InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return env
	}
}

// expect reads one message, checks its type and decodes the payload.
func expect(t *testing.T, conn *websocket.Conn, want string, into interface{}) {
	t.Helper()
	env := readEnvelope(t, conn)
	if env.T != want {
		t.Fatalf("expected %s, got %s %s", want, env.T, env.D)
	}
	if into != nil {
		if err := json.Unmarshal(env.D, into); err != nil {
			t.Fatalf("decode %s: %v", want, err)
		}
	}
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, _ := json.Marshal(Envelope{T: msgType, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// createLobby opens a lobby as host and returns the created payload.
func createLobby(t *testing.T, conn *websocket.Conn, passcode string) CreatedMsg {
	t.Helper()
	sendMsg(t, conn, MsgCreate, CreateMsg{Name: "hostie", Char: "blaze", Passcode: passcode})
	var created CreatedMsg
	expect(t, conn, MsgCreated, &created)
	return created
}

// pair creates a lobby with host and seats guest in it.
func pair(t *testing.T, host, guest *websocket.Conn) (string, PairedMsg, PairedMsg) {
	t.Helper()
	created := createLobby(t, host, "")
	sendMsg(t, guest, MsgJoin, JoinMsg{LID: created.LID, Name: "guesty", Char: "stone"})
	expect(t, guest, MsgJoined, nil)

	var hp, gp PairedMsg
	expect(t, host, MsgPaired, &hp)
	expect(t, guest, MsgPaired, &gp)
	return created.LID, hp, gp
}

func getJSON(t *testing.T, rawURL string, into interface{}) {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode %s: %v", rawURL, err)
	}
}

// ---------- lobby flow ----------

func TestCreateLobby(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	created := createLobby(t, conn, "")
	if created.LID == "" || created.Invite == "" {
		t.Fatalf("created = %+v", created)
	}
	u, err := url.Parse(created.URL)
	if err != nil {
		t.Fatalf("bad invite url %q: %v", created.URL, err)
	}
	if u.Host != "kickoff.test" || u.Query().Get("lobby") != created.LID {
		t.Errorf("invite url = %s", created.URL)
	}

	// One lobby per connection
	sendMsg(t, conn, MsgCreate, CreateMsg{Name: "again", Char: "bolt"})
	expect(t, conn, MsgError, nil)
}

func TestCreateRejectsUnknownCharacter(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	sendMsg(t, conn, MsgCreate, CreateMsg{Name: "x", Char: "goalie"})
	var e ErrorMsg
	expect(t, conn, MsgError, &e)
	if !strings.Contains(e.Msg, "goalie") {
		t.Errorf("error = %q", e.Msg)
	}
}

func TestJoinPairsBothSides(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	host, guest := dialWS(t, wsURL), dialWS(t, wsURL)

	lid, hp, gp := pair(t, host, guest)
	if hp.Role != RoleHost || gp.Role != RoleJoiner {
		t.Errorf("roles = %s/%s", hp.Role, gp.Role)
	}
	if hp.Peer != "guesty" || gp.Peer != "hostie" {
		t.Errorf("peers = %s/%s", hp.Peer, gp.Peer)
	}
	if hp.LID != lid || gp.LID != lid {
		t.Errorf("lobby ids = %s/%s, want %s", hp.LID, gp.LID, lid)
	}
	if !uuidRegex.MatchString(hp.MatchID) || hp.MatchID != gp.MatchID {
		t.Errorf("match ids = %q/%q", hp.MatchID, gp.MatchID)
	}

	third := dialWS(t, wsURL)
	sendMsg(t, third, MsgJoin, JoinMsg{LID: lid, Name: "late", Char: "bolt"})
	var e ErrorMsg
	expect(t, third, MsgError, &e)
	if e.Msg != ErrLobbyFull.Error() {
		t.Errorf("error = %q", e.Msg)
	}
}

func TestJoinUnknownLobby(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	sendMsg(t, conn, MsgJoin, JoinMsg{LID: "no-such-lobby", Char: "bolt"})
	var e ErrorMsg
	expect(t, conn, MsgError, &e)
	if e.Msg != ErrLobbyNotFound.Error() {
		t.Errorf("error = %q", e.Msg)
	}
}

func TestListAndCheck(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	host, other := dialWS(t, wsURL), dialWS(t, wsURL)
	created := createLobby(t, host, "")

	sendMsg(t, other, MsgList, nil)
	var list []LobbyInfo
	expect(t, other, MsgLobbies, &list)
	if len(list) != 1 || list[0].LID != created.LID || list[0].Char != "BLAZE" || list[0].Players != 1 {
		t.Errorf("list = %+v", list)
	}

	sendMsg(t, other, MsgCheck, CheckMsg{LID: created.LID})
	var checked CheckedMsg
	expect(t, other, MsgChecked, &checked)
	if !checked.Exists || checked.Host != "hostie" {
		t.Errorf("checked = %+v", checked)
	}

	sendMsg(t, other, MsgCheck, CheckMsg{LID: "gone"})
	expect(t, other, MsgChecked, &checked)
	if checked.Exists {
		t.Error("unknown lobby should not exist")
	}

	var api []LobbyInfo
	getJSON(t, srv.URL+"/api/lobbies", &api)
	if len(api) != 1 {
		t.Errorf("/api/lobbies = %+v", api)
	}
}

func TestPrivateLobby(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	host := dialWS(t, wsURL)
	created := createLobby(t, host, "s3cret")

	guest := dialWS(t, wsURL)
	sendMsg(t, guest, MsgJoin, JoinMsg{LID: created.LID, Char: "bolt"})
	var e ErrorMsg
	expect(t, guest, MsgError, &e)
	if e.Msg != ErrBadPasscode.Error() {
		t.Errorf("no passcode: %q", e.Msg)
	}

	sendMsg(t, guest, MsgJoin, JoinMsg{LID: created.LID, Char: "bolt", Passcode: "guess"})
	expect(t, guest, MsgError, &e)

	sendMsg(t, guest, MsgJoin, JoinMsg{LID: created.LID, Char: "bolt", Passcode: "s3cret"})
	expect(t, guest, MsgJoined, nil)
	expect(t, guest, MsgPaired, nil)
}

func TestPrivateLobbyInvite(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	host := dialWS(t, wsURL)
	created := createLobby(t, host, "s3cret")

	// An invite for another lobby does not open this one
	stray, _ := hub.auth.IssueInvite("some-other-lobby")
	guest := dialWS(t, wsURL)
	sendMsg(t, guest, MsgJoin, JoinMsg{LID: created.LID, Char: "bolt", Invite: stray})
	expect(t, guest, MsgError, nil)

	sendMsg(t, guest, MsgJoin, JoinMsg{LID: created.LID, Char: "bolt", Invite: created.Invite})
	expect(t, guest, MsgJoined, nil)
	expect(t, guest, MsgPaired, nil)
}

// ---------- relay ----------

func TestRelayForwardsBinaryFrames(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	host, guest := dialWS(t, wsURL), dialWS(t, wsURL)
	pair(t, host, guest)

	state := NewMatchState(CharBlaze, CharStone)
	frame, _ := EncodePacket(&Packet{Kind: PacketState, Seq: 1, State: &state})
	if err := host.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatal(err)
	}

	guest.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, got, err := guest.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msgType != websocket.BinaryMessage || !bytes.Equal(got, frame) {
		t.Fatal("frame was altered in transit")
	}
	p, err := DecodePacket(got)
	if err != nil || p.Validate() != nil {
		t.Fatalf("relayed packet: %v", err)
	}

	input, _ := EncodePacket(&Packet{Kind: PacketInput, Input: &InputEvent{Sym: KeyJump, Down: true}})
	guest.WriteMessage(websocket.BinaryMessage, input)
	host.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, got, err = host.ReadMessage(); err != nil || !bytes.Equal(got, input) {
		t.Fatalf("joiner frame not relayed: %v", err)
	}
}

func TestBinaryBeforePairingDropped(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	host := dialWS(t, wsURL)
	createLobby(t, host, "")

	host.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
	sendMsg(t, host, MsgList, nil)
	// The next thing back is the list, not an echo or an error
	expect(t, host, MsgLobbies, nil)
}

func TestPeerLeftOnDisconnect(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	host, guest := dialWS(t, wsURL), dialWS(t, wsURL)
	lid, _, _ := pair(t, host, guest)

	guest.Close()
	var left map[string]string
	expect(t, host, MsgPeerLeft, &left)
	if left["lid"] != lid {
		t.Errorf("peer_left = %v", left)
	}

	var api []LobbyInfo
	getJSON(t, srv.URL+"/api/lobbies", &api)
	if len(api) != 0 {
		t.Errorf("lobby should be gone, got %+v", api)
	}
}

func TestLeaveNotifiesPartner(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	host, guest := dialWS(t, wsURL), dialWS(t, wsURL)
	pair(t, host, guest)

	sendMsg(t, host, MsgLeave, nil)
	expect(t, guest, MsgPeerLeft, nil)

	// The guest may open a new lobby straight away
	sendMsg(t, guest, MsgCreate, CreateMsg{Name: "g", Char: "bolt"})
	expect(t, guest, MsgCreated, nil)
}

// ---------- results ----------

func TestHostReportsResult(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	host, guest := dialWS(t, wsURL), dialWS(t, wsURL)
	_, hp, _ := pair(t, host, guest)

	res := ResultMsg{P1Char: "BLAZE", P2Char: "STONE", P1Score: 3, P2Score: 1, Ticks: 5600}

	sendMsg(t, guest, MsgResult, res)
	expect(t, guest, MsgError, nil)

	sendMsg(t, host, MsgResult, res)
	var rec map[string]string
	expect(t, host, MsgRecorded, &rec)
	if rec["mid"] != hp.MatchID {
		t.Errorf("recorded %v, want mid %s", rec, hp.MatchID)
	}

	sendMsg(t, host, MsgResult, res)
	expect(t, host, MsgError, nil) // once per match

	var matches []MatchRecord
	getJSON(t, srv.URL+"/api/matches?limit=5", &matches)
	if len(matches) != 1 {
		t.Fatalf("matches = %+v", matches)
	}
	m := matches[0]
	if m.ID != hp.MatchID || m.P1Name != "hostie" || m.P2Name != "guesty" || m.Winner != 1 || m.P1Score != 3 || m.Ticks != 5600 {
		t.Errorf("match = %+v", m)
	}

	var stats []CharacterStatsRow
	getJSON(t, srv.URL+"/api/characters", &stats)
	byChar := map[string]CharacterStatsRow{}
	for _, s := range stats {
		byChar[s.Char] = s
	}
	if b := byChar["BLAZE"]; b.Wins != 1 || b.GoalsFor != 3 || b.GoalsAgainst != 1 {
		t.Errorf("BLAZE = %+v", b)
	}
	if s := byChar["STONE"]; s.Losses != 1 || s.Played != 1 {
		t.Errorf("STONE = %+v", s)
	}
}

// ---------- HTTP ----------

func TestQRInvite(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	host := dialWS(t, wsURL)
	created := createLobby(t, host, "")

	resp, err := http.Get(srv.URL + "/qr/" + created.LID + ".png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	for _, path := range []string{"/qr/missing-lobby-1.png", "/qr/" + created.LID} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestStatusAndEvents(t *testing.T) {
	srv, wsURL, hub := startTestServer(t)
	host, guest := dialWS(t, wsURL), dialWS(t, wsURL)
	pair(t, host, guest)

	deadline := time.Now().Add(2 * time.Second)
	var live LiveMetrics
	for time.Now().Before(deadline) {
		getJSON(t, srv.URL+"/api/status", &live)
		if live.Connected == 2 && live.Paired == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if live.Connected != 2 || live.Paired != 1 {
		t.Errorf("live = %+v", live)
	}

	hub.analytics.Stop() // flush
	counts, err := hub.analytics.EventCounts(1)
	if err != nil {
		t.Fatal(err)
	}
	if counts[EvtLobbyCreated] != 1 || counts[EvtPaired] != 1 {
		t.Errorf("event counts = %v", counts)
	}
}

func TestPerIPConnectionLimit(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	hub.connMu.Lock()
	hub.maxConnsPerIP = 2
	hub.connMu.Unlock()

	dialWS(t, wsURL)
	dialWS(t, wsURL)
	for i := 0; i < 200 && hub.TotalConns() < 2; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("third connection should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", resp)
	}
}

// ---------- headless peers ----------

func TestPeersPlayOverRelay(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)

	hostCtx, stopHost := context.WithCancel(context.Background())
	defer stopHost()
	hostErr := make(chan error, 1)
	go func() {
		hostErr <- RunPeer(hostCtx, PeerOptions{URL: wsURL, Name: "auto-host", Char: CharBolt, Seed: 1, Session: DefaultSessionConfig()})
	}()

	var lid string
	deadline := time.Now().Add(2 * time.Second)
	for lid == "" && time.Now().Before(deadline) {
		var list []LobbyInfo
		getJSON(t, srv.URL+"/api/lobbies", &list)
		if len(list) == 1 {
			lid = list[0].LID
		}
		time.Sleep(10 * time.Millisecond)
	}
	if lid == "" {
		t.Fatal("host never opened a lobby")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	joinErr := make(chan error, 1)
	go func() {
		joinErr <- RunPeer(ctx, PeerOptions{URL: wsURL, Name: "auto-join", Char: CharStone, Lobby: lid, Seed: 2, Session: DefaultSessionConfig()})
	}()

	// Let a few hundred milliseconds of play happen, then blow the whistle
	time.Sleep(800 * time.Millisecond)
	stopHost()

	if err := <-hostErr; err != nil {
		t.Errorf("host: %v", err)
	}
	if err := <-joinErr; err != nil {
		t.Errorf("joiner: %v", err)
	}

	var matches []MatchRecord
	deadline = time.Now().Add(2 * time.Second)
	for len(matches) == 0 && time.Now().Before(deadline) {
		getJSON(t, srv.URL+"/api/matches", &matches)
		time.Sleep(10 * time.Millisecond)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %+v", matches)
	}
	m := matches[0]
	if m.P1Char != "BOLT" || m.P2Char != "STONE" || m.P1Name != "auto-host" || m.P2Name != "auto-join" {
		t.Errorf("match = %+v", m)
	}
	if m.Ticks == 0 {
		t.Error("no ticks recorded")
	}
}
