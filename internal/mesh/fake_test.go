package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/roommesh/internal/protocol"
	"github.com/BioHazard786/roommesh/internal/relay"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// memRelay is an in-process control plane backed by the real forwarder.
type memRelay struct {
	fwd *relay.Forwarder

	mu       sync.Mutex
	failDial bool
	dials    int
	conns    []*memConn
	sent     map[string]int
}

func newMemRelay() *memRelay {
	return &memRelay{
		fwd:  relay.NewForwarder(relay.NewRegistry(), relay.Options{Logger: discard}),
		sent: make(map[string]int),
	}
}

func (r *memRelay) Dial(ctx context.Context) (ControlConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dials++
	if r.failDial {
		return nil, errors.New("connection refused")
	}
	conn := &memConn{relay: r, side: newRelaySide(fmt.Sprintf("mem-%d", r.dials))}
	r.conns = append(r.conns, conn)
	return conn, nil
}

func (r *memRelay) setFailDial(fail bool) {
	r.mu.Lock()
	r.failDial = fail
	r.mu.Unlock()
}

func (r *memRelay) dialCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

func (r *memRelay) sentCount(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[msgType]
}

// conn returns the i-th dialed connection.
func (r *memRelay) conn(i int) *memConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[i]
}

func (r *memRelay) record(msgType string) {
	r.mu.Lock()
	r.sent[msgType]++
	r.mu.Unlock()
}

// relaySide is the relay's handle for one in-memory connection.
type relaySide struct {
	name string

	mu       sync.Mutex
	closed   bool
	ch       chan *protocol.Message
	received map[string]int
}

func newRelaySide(name string) *relaySide {
	return &relaySide{name: name, ch: make(chan *protocol.Message, 1024), received: make(map[string]int)}
}

func (s *relaySide) Send(msg *protocol.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		s.received[msg.Type]++
		return true
	default:
		return false
	}
}

func (s *relaySide) String() string { return s.name }

func (s *relaySide) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *relaySide) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *relaySide) receivedCount(msgType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received[msgType]
}

// signals drains everything queued on a side that no coordinator reads.
func (s *relaySide) signals() []protocol.SignalEvent {
	var out []protocol.SignalEvent
	for {
		select {
		case msg, ok := <-s.ch:
			if !ok {
				return out
			}
			if msg.Type != protocol.TypeSignal {
				continue
			}
			var ev protocol.SignalEvent
			if msg.Decode(&ev) == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

type memConn struct {
	relay *memRelay
	side  *relaySide
	once  sync.Once
}

func (c *memConn) Send(msg *protocol.Message) error {
	if c.side.isClosed() {
		return errors.New("connection closed")
	}
	c.relay.record(msg.Type)
	c.relay.fwd.Handle(c.side, msg)
	return nil
}

func (c *memConn) Incoming() <-chan *protocol.Message { return c.side.ch }

func (c *memConn) Close() error {
	c.once.Do(func() {
		c.relay.fwd.Disconnect(c.side)
		c.side.shut()
	})
	return nil
}

// fabric links fake peer connections created by different coordinators.
// Offers are tokens that the answering side looks up to find its peer.
type fabric struct {
	mu      sync.Mutex
	seq     int
	offers  map[string]*fakePC
	offered map[string]int
	answers map[string]int
	blocked map[[2]string]bool
	failing map[[2]string]bool
	early   int
	conns   []*fakePC
}

func newFabric() *fabric {
	return &fabric{
		offers:  make(map[string]*fakePC),
		offered: make(map[string]int),
		answers: make(map[string]int),
		blocked: make(map[[2]string]bool),
		failing: make(map[[2]string]bool),
	}
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// block keeps connections between a and b from ever connecting.
func (f *fabric) block(a, b string) {
	f.mu.Lock()
	f.blocked[pairKey(a, b)] = true
	f.mu.Unlock()
}

// fail makes connections between a and b report transport failure.
func (f *fabric) fail(a, b string) {
	f.mu.Lock()
	f.failing[pairKey(a, b)] = true
	f.mu.Unlock()
}

func (f *fabric) offersBy(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offered[owner]
}

func (f *fabric) answersBy(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers[owner]
}

func (f *fabric) earlyCandidates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.early
}

// latest returns the newest connection owner opened towards remote.
func (f *fabric) latest(owner, remote string) *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.conns) - 1; i >= 0; i-- {
		if pc := f.conns[i]; pc.owner == owner && pc.remote == remote {
			return pc
		}
	}
	return nil
}

func (f *fabric) connector(owner string) PeerConnector {
	return &fakeConnector{f: f, owner: owner}
}

type fakeConnector struct {
	f     *fabric
	owner string
}

func (c *fakeConnector) NewConnection(remote string) (PeerConnection, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	c.f.seq++
	pc := &fakePC{f: c.f, id: c.f.seq, owner: c.owner, remote: remote}
	c.f.conns = append(c.f.conns, pc)
	return pc, nil
}

type fakePC struct {
	f      *fabric
	id     int
	owner  string
	remote string

	mu         sync.Mutex
	onCand     func(protocol.Candidate)
	onDC       func(DataChannel)
	onState    func(TransportState)
	local      *fakeDC
	peer       *fakePC
	remoteSet  bool
	closed     bool
	candidates []protocol.Candidate
}

func (pc *fakePC) CreateDataChannel(label string) (DataChannel, error) {
	dc := &fakeDC{label: label}
	pc.mu.Lock()
	pc.local = dc
	pc.mu.Unlock()
	return dc, nil
}

func (pc *fakePC) CreateOffer() (string, error) {
	token := fmt.Sprintf("offer:%d", pc.id)
	pc.f.mu.Lock()
	pc.f.offers[token] = pc
	pc.f.offered[pc.owner]++
	pc.f.mu.Unlock()
	pc.emitCandidate()
	return token, nil
}

func (pc *fakePC) AcceptOffer(sdp string) (string, error) {
	pc.f.mu.Lock()
	offerer := pc.f.offers[sdp]
	pc.f.answers[pc.owner]++
	pc.f.mu.Unlock()

	pc.mu.Lock()
	pc.remoteSet = true
	pc.peer = offerer
	pc.mu.Unlock()
	if offerer != nil {
		offerer.mu.Lock()
		offerer.peer = pc
		offerer.mu.Unlock()
	}
	pc.emitCandidate()
	return fmt.Sprintf("answer:%d", pc.id), nil
}

func (pc *fakePC) AcceptAnswer(sdp string) error {
	pc.mu.Lock()
	pc.remoteSet = true
	peer := pc.peer
	pc.mu.Unlock()
	if peer != nil {
		pc.f.connect(pc, peer)
	}
	return nil
}

func (pc *fakePC) AddCandidate(c protocol.Candidate) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.remoteSet {
		pc.f.mu.Lock()
		pc.f.early++
		pc.f.mu.Unlock()
		return errors.New("remote description not set")
	}
	pc.candidates = append(pc.candidates, c)
	return nil
}

func (pc *fakePC) appliedCandidates() []protocol.Candidate {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]protocol.Candidate(nil), pc.candidates...)
}

func (pc *fakePC) OnCandidate(fn func(protocol.Candidate)) {
	pc.mu.Lock()
	pc.onCand = fn
	pc.mu.Unlock()
}

func (pc *fakePC) OnDataChannel(fn func(DataChannel)) {
	pc.mu.Lock()
	pc.onDC = fn
	pc.mu.Unlock()
}

func (pc *fakePC) OnStateChange(fn func(TransportState)) {
	pc.mu.Lock()
	pc.onState = fn
	pc.mu.Unlock()
}

func (pc *fakePC) Close() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	pc.closed = true
	pc.mu.Unlock()
	pc.fireState(TransportClosed)
	return nil
}

func (pc *fakePC) emitCandidate() {
	pc.mu.Lock()
	fn := pc.onCand
	pc.mu.Unlock()
	if fn != nil {
		fn(protocol.Candidate{Candidate: fmt.Sprintf("candidate:%d 1 udp 2130706431 127.0.0.1 %d typ host", pc.id, 40000+pc.id)})
	}
}

func (pc *fakePC) fireState(state TransportState) {
	pc.mu.Lock()
	fn := pc.onState
	pc.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (pc *fakePC) channel() *fakeDC {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.local
}

// connect completes negotiation between an offerer and its answerer.
func (f *fabric) connect(offerer, answerer *fakePC) {
	key := pairKey(offerer.owner, answerer.owner)
	f.mu.Lock()
	blocked, failing := f.blocked[key], f.failing[key]
	f.mu.Unlock()

	switch {
	case blocked:
		return
	case failing:
		offerer.fireState(TransportFailed)
		answerer.fireState(TransportFailed)
		return
	}

	offerer.fireState(TransportConnected)
	answerer.fireState(TransportConnected)

	local := offerer.channel()
	if local == nil {
		return
	}
	remote := &fakeDC{label: local.label}
	local.link(remote)

	answerer.mu.Lock()
	onDC := answerer.onDC
	answerer.mu.Unlock()
	if onDC != nil {
		onDC(remote)
	}
	local.markOpen()
	remote.markOpen()
}

type fakeDC struct {
	label string

	mu        sync.Mutex
	open      bool
	closed    bool
	peer      *fakeDC
	onOpen    func()
	onClose   func()
	onMessage func([]byte)
}

func (d *fakeDC) link(other *fakeDC) {
	d.mu.Lock()
	d.peer = other
	d.mu.Unlock()
	other.mu.Lock()
	other.peer = d
	other.mu.Unlock()
}

func (d *fakeDC) Label() string { return d.label }

func (d *fakeDC) OnOpen(fn func()) {
	d.mu.Lock()
	d.onOpen = fn
	open := d.open && !d.closed
	d.mu.Unlock()
	if open {
		fn()
	}
}

func (d *fakeDC) OnClose(fn func()) {
	d.mu.Lock()
	d.onClose = fn
	d.mu.Unlock()
}

func (d *fakeDC) OnMessage(fn func([]byte)) {
	d.mu.Lock()
	d.onMessage = fn
	d.mu.Unlock()
}

func (d *fakeDC) markOpen() {
	d.mu.Lock()
	d.open = true
	fn := d.onOpen
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (d *fakeDC) Send(data []byte) error {
	d.mu.Lock()
	if !d.open || d.closed || d.peer == nil {
		d.mu.Unlock()
		return errors.New("data channel not open")
	}
	peer := d.peer
	d.mu.Unlock()

	peer.mu.Lock()
	fn := peer.onMessage
	peer.mu.Unlock()
	if fn != nil {
		fn(append([]byte(nil), data...))
	}
	return nil
}

// Close closes both ends, as an SCTP stream reset would.
func (d *fakeDC) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	fn := d.onClose
	peer := d.peer
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
	if peer != nil {
		peer.Close()
	}
	return nil
}

// node builds a coordinator wired to r and f.
func node(t *testing.T, r *memRelay, f *fabric, id string, opts ...func(*Options)) *Coordinator {
	t.Helper()
	o := Options{
		PeerID:  id,
		Name:    "name-" + id,
		Control: r,
		Peers:   f.connector(id),
		Logger:  discard,
	}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := New(o)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func withClock(clk clock.Clock) func(*Options) {
	return func(o *Options) { o.Clock = clk }
}

func eventually(t *testing.T, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond, msgAndArgs...)
}

func peerCount(c *Coordinator) int {
	return c.Snapshot().PeerCount
}

func direct(c *Coordinator, peerID string) bool {
	p, ok := c.Snapshot().Peers[peerID]
	return ok && p.Direct
}

func connected(c *Coordinator) bool {
	return c.Snapshot().Status == StatusConnected
}

// inbox collects handler calls.
type inbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (b *inbox) handle(msg Message) {
	b.mu.Lock()
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()
}

func (b *inbox) all() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]Message(nil), b.msgs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}
