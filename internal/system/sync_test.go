package system

import (
	"testing"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
)

// clientEntity is the test client's view of one entity.
type clientEntity struct {
	kind  byte
	x, y  float32
	mass  float32
	owner uint32
}

// clientView replays snapshot and delta frames the way a real client would.
type clientView struct {
	entities map[uint64]clientEntity
}

func newClientView() *clientView {
	return &clientView{entities: make(map[uint64]clientEntity)}
}

func (c *clientView) readFullRecord(r *packet.Reader) (uint64, clientEntity) {
	id := r.ReadQ()
	e := clientEntity{kind: r.ReadC()}
	e.x = r.ReadF()
	e.y = r.ReadF()
	e.mass = r.ReadF()
	if e.kind == packet.WireKindCell {
		e.owner = r.ReadD()
	}
	return id, e
}

func (c *clientView) applySnapshot(t *testing.T, frame []byte) {
	t.Helper()
	r := packet.NewReader(frame)
	if frame[0] != packet.S_OPCODE_SNAPSHOT {
		t.Fatalf("opcode=0x%02X want snapshot", frame[0])
	}
	r.ReadD() // tick
	flags := r.ReadC()
	block := r.ReadBytes(r.Remaining())
	if flags&packet.SnapshotFlagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer dec.Close()
		block, err = dec.DecodeAll(block, nil)
		if err != nil {
			t.Fatalf("zstd decode: %v", err)
		}
	}

	// A snapshot replaces the whole view.
	c.entities = make(map[uint64]clientEntity)
	br := packet.NewReader(append([]byte{0}, block...)) // reader skips byte 0
	count := int(br.ReadH())
	for i := 0; i < count; i++ {
		id, e := c.readFullRecord(br)
		c.entities[id] = e
	}
}

func (c *clientView) applyDelta(t *testing.T, frame []byte) {
	t.Helper()
	if frame[0] != packet.S_OPCODE_DELTA {
		t.Fatalf("opcode=0x%02X want delta", frame[0])
	}
	r := packet.NewReader(frame)
	r.ReadD() // tick

	entered := int(r.ReadH())
	for i := 0; i < entered; i++ {
		id, e := c.readFullRecord(r)
		c.entities[id] = e
	}
	updated := int(r.ReadH())
	for i := 0; i < updated; i++ {
		id := r.ReadQ()
		e, ok := c.entities[id]
		if !ok {
			t.Fatalf("update for unknown entity %d", id)
		}
		e.x = r.ReadF()
		e.y = r.ReadF()
		e.mass = r.ReadF()
		c.entities[id] = e
	}
	left := int(r.ReadH())
	for i := 0; i < left; i++ {
		id := r.ReadQ()
		if _, ok := c.entities[id]; !ok {
			t.Fatalf("leave for unknown entity %d", id)
		}
		delete(c.entities, id)
	}
}

// drainFrames flushes a session's buffered output and returns the frames.
func drainFrames(sess *gonet.Session) [][]byte {
	sess.FlushOutput()
	var out [][]byte
	for {
		select {
		case f := <-sess.OutQueue:
			out = append(out, f)
		default:
			return out
		}
	}
}

func framesByOpcode(frames [][]byte, opcode byte) [][]byte {
	var out [][]byte
	for _, f := range frames {
		if len(f) > 0 && f[0] == opcode {
			out = append(out, f)
		}
	}
	return out
}

func TestSync_FirstContactIsFullSnapshot(t *testing.T) {
	ws, cfg, tun := newTestWorld(t, 1)
	log := zap.NewNop()
	index := NewIndexSystem(ws)
	sync := NewSyncSystem(ws, cfg, tun, log)

	p := addTestPlayer(t, ws, 1, "viewer")
	ws.SpawnCell(p, 1000, 1000, 314, 0, 0, 0)
	ws.SpawnFood(1100, 1000, 2)
	ws.SpawnFood(100, 100, 2) // far outside the viewport

	ws.Tick = 1 // avoid the tick-0 leaderboard frame
	index.Update(0)
	sync.Update(0)

	frames := drainFrames(p.Session)
	snaps := framesByOpcode(frames, packet.S_OPCODE_SNAPSHOT)
	if len(snaps) != 1 {
		t.Fatalf("snapshots=%d want 1", len(snaps))
	}

	view := newClientView()
	view.applySnapshot(t, snaps[0])
	if len(view.entities) != 2 {
		t.Fatalf("visible entities=%d want 2 (own cell + near food)", len(view.entities))
	}
	if p.NeedFull {
		t.Fatalf("NeedFull still set after snapshot")
	}

	// The next quiet tick produces no frame at all.
	index.Update(0)
	sync.Update(0)
	if frames := drainFrames(p.Session); len(frames) != 0 {
		t.Fatalf("quiet tick produced %d frames", len(frames))
	}
}

func TestSync_DeltaReplayMatchesSnapshot(t *testing.T) {
	ws, cfg, tun := newTestWorld(t, 1)
	log := zap.NewNop()
	index := NewIndexSystem(ws)
	sync := NewSyncSystem(ws, cfg, tun, log)

	p := addTestPlayer(t, ws, 1, "viewer")
	cell := ws.SpawnCell(p, 1000, 1000, 314, 0, 0, 0)
	near := ws.SpawnFood(1100, 1000, 2)
	ws.SpawnFood(1050, 950, 3)

	ws.Tick = 1
	index.Update(0)
	sync.Update(0)
	view := newClientView()
	view.applySnapshot(t, framesByOpcode(drainFrames(p.Session), packet.S_OPCODE_SNAPSHOT)[0])

	// Tick 2: move the cell, eat nothing, spawn a pellet, remove one.
	tr, _ := ws.Stores.Transforms.Get(cell)
	tr.X += 40
	ws.SpawnFood(1010, 1010, 2)
	ws.ECS.MarkForDestruction(near)
	ws.ECS.FlushDestroyQueue()
	ws.Tick = 2
	index.Update(0)
	sync.Update(0)

	deltas := framesByOpcode(drainFrames(p.Session), packet.S_OPCODE_DELTA)
	if len(deltas) != 1 {
		t.Fatalf("deltas=%d want 1", len(deltas))
	}
	view.applyDelta(t, deltas[0])

	// Tick 3: mass change only.
	b, _ := ws.Stores.Bodies.Get(cell)
	ws.SetMass(b, 340)
	ws.Tick = 3
	index.Update(0)
	sync.Update(0)
	view.applyDelta(t, framesByOpcode(drainFrames(p.Session), packet.S_OPCODE_DELTA)[0])

	// Authoritative reference: force a fresh snapshot and compare views.
	p.NeedFull = true
	ws.Tick = 4
	index.Update(0)
	sync.Update(0)
	ref := newClientView()
	ref.applySnapshot(t, framesByOpcode(drainFrames(p.Session), packet.S_OPCODE_SNAPSHOT)[0])

	if len(view.entities) != len(ref.entities) {
		t.Fatalf("replayed view has %d entities, reference %d", len(view.entities), len(ref.entities))
	}
	for id, want := range ref.entities {
		got, ok := view.entities[id]
		if !ok {
			t.Fatalf("entity %d missing from replayed view", id)
		}
		if got != want {
			t.Fatalf("entity %d mismatch: replay=%+v ref=%+v", id, got, want)
		}
	}
}

func TestSync_CoalescedSessionGetsFullSnapshot(t *testing.T) {
	ws, cfg, tun := newTestWorld(t, 1)
	log := zap.NewNop()
	index := NewIndexSystem(ws)
	sync := NewSyncSystem(ws, cfg, tun, log)

	// Tiny queue so a single tick's frames overflow it.
	sess := gonet.NewSession(fakeConn{}, 1, gonet.SessionOptions{
		InQueueSize:  8,
		OutQueueSize: 1,
	}, zap.NewNop())
	p := ws.AddPlayer(sess, "laggy")
	if p == nil {
		t.Fatalf("AddPlayer refused")
	}
	cell := ws.SpawnCell(p, 1000, 1000, 314, 0, 0, 0)

	ws.Tick = 1
	index.Update(0)
	sync.Update(0)
	sess.Send([]byte{0x00}) // extra frame to overflow the 1-slot queue
	sess.FlushOutput()

	if !sess.WantFullSnapshot() {
		t.Fatalf("coalescing must request a full snapshot")
	}

	// Drain the stuck queue and run another sync: it must be a snapshot,
	// not a delta, even though the known set is nonempty.
	for {
		select {
		case <-sess.OutQueue:
			continue
		default:
		}
		break
	}
	tr, _ := ws.Stores.Transforms.Get(cell)
	tr.X += 5
	ws.Tick = 2
	index.Update(0)
	sync.Update(0)

	frames := drainFrames(sess)
	if len(framesByOpcode(frames, packet.S_OPCODE_SNAPSHOT)) != 1 {
		t.Fatalf("expected a full snapshot after coalescing, frames=%d", len(frames))
	}
	if sess.WantFullSnapshot() {
		t.Fatalf("wantFull not cleared after snapshot")
	}
}

func TestSync_SnapshotCompressesLargeBlocks(t *testing.T) {
	ws, cfg, tun := newTestWorld(t, 1)
	cfg.Network.CompressMinBytes = 1 // force compression
	log := zap.NewNop()
	index := NewIndexSystem(ws)
	sync := NewSyncSystem(ws, cfg, tun, log)

	p := addTestPlayer(t, ws, 1, "viewer")
	ws.SpawnCell(p, 1000, 1000, 314, 0, 0, 0)
	for i := 0; i < 30; i++ {
		ws.SpawnFood(950+float32(i)*3, 1000, 2)
	}

	ws.Tick = 1
	index.Update(0)
	sync.Update(0)

	snap := framesByOpcode(drainFrames(p.Session), packet.S_OPCODE_SNAPSHOT)[0]
	r := packet.NewReader(snap)
	r.ReadD()
	if flags := r.ReadC(); flags&packet.SnapshotFlagZstd == 0 {
		t.Fatalf("compression flag not set")
	}

	// Round-trips through the compressed path.
	view := newClientView()
	view.applySnapshot(t, snap)
	if len(view.entities) != 31 {
		t.Fatalf("entities=%d want 31", len(view.entities))
	}
}

func TestSync_LeaderboardRanksByMass(t *testing.T) {
	ws, cfg, tun := newTestWorld(t, 1)
	log := zap.NewNop()
	index := NewIndexSystem(ws)
	sync := NewSyncSystem(ws, cfg, tun, log)

	p1 := addTestPlayer(t, ws, 1, "small")
	p2 := addTestPlayer(t, ws, 2, "big")
	ws.SpawnCell(p1, 200, 200, 100, 0, 0, 0)
	ws.SpawnCell(p2, 1800, 1800, 500, 0, 0, 0)

	ws.Tick = uint32(cfg.Rules.LeaderboardTicks) // interval boundary
	index.Update(0)
	sync.Update(0)

	frames := drainFrames(p1.Session)
	lbs := framesByOpcode(frames, packet.S_OPCODE_LEADERBOARD)
	if len(lbs) != 1 {
		t.Fatalf("leaderboard frames=%d want 1", len(lbs))
	}
	r := packet.NewReader(lbs[0])
	if n := r.ReadC(); n != 2 {
		t.Fatalf("entries=%d want 2", n)
	}
	if first := r.ReadD(); first != p2.ID {
		t.Fatalf("rank 1 player=%d want %d (heaviest)", first, p2.ID)
	}
	if name := r.ReadS(); name != "big" {
		t.Fatalf("rank 1 name=%q want big", name)
	}
}
