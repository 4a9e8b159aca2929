package handler

import (
	"io"
	"math"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agargo/server/internal/config"
	"github.com/agargo/server/internal/core/event"
	"github.com/agargo/server/internal/data"
	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
	"github.com/agargo/server/internal/world"
)

type stubAddr struct{}

func (stubAddr) Network() string { return "stub" }
func (stubAddr) String() string  { return "stub:0" }

type stubConn struct{}

func (stubConn) ReadMessage() (int, []byte, error) { return 0, nil, io.EOF }
func (stubConn) WriteMessage(int, []byte) error    { return nil }
func (stubConn) SetReadDeadline(time.Time) error   { return nil }
func (stubConn) SetWriteDeadline(time.Time) error  { return nil }
func (stubConn) RemoteAddr() net.Addr              { return stubAddr{} }
func (stubConn) Close() error                      { return nil }

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.RateLimit.Enabled = false // rate limits have their own tests
	tun, err := data.LoadTuning(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	return &Deps{
		World: world.NewState(cfg, tun, 1),
		Cfg:   cfg,
		Tun:   tun,
		Bus:   event.NewBus(),
		Log:   zap.NewNop(),
	}
}

func newTestSession(id uint64) *gonet.Session {
	return gonet.NewSession(stubConn{}, id, gonet.SessionOptions{
		InQueueSize:  8,
		OutQueueSize: 64,
	}, zap.NewNop())
}

// sentFrames flushes and drains everything the handler queued for a session.
func sentFrames(sess *gonet.Session) [][]byte {
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

func joinFrame(name string) *packet.Reader {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_JOIN)
	w.WriteS(name)
	return packet.NewReader(w.Bytes())
}

func moveFrame(seq uint32, dx, dy float32) *packet.Reader {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_MOVE)
	w.WriteD(seq)
	w.WriteF(dx)
	w.WriteF(dy)
	return packet.NewReader(w.Bytes())
}

func TestJoin_AdmitsPlayerAndSpawnsCell(t *testing.T) {
	deps := newTestDeps(t)
	sess := newTestSession(1)

	HandleJoin(deps, sess, joinFrame("blob"))

	p := deps.World.GetBySession(1)
	if p == nil {
		t.Fatalf("player not registered")
	}
	if len(p.Cells) != 1 {
		t.Fatalf("cells=%d want 1", len(p.Cells))
	}
	b, _ := deps.World.Stores.Bodies.Get(p.Cells[0])
	if b.Mass != deps.Cfg.Rules.StartMass {
		t.Fatalf("spawn mass=%v want %v", b.Mass, deps.Cfg.Rules.StartMass)
	}
	if sess.State() != packet.StateInWorld {
		t.Fatalf("state=%v want InWorld", sess.State())
	}

	frames := sentFrames(sess)
	if len(frames) != 1 || frames[0][0] != packet.S_OPCODE_WELCOME {
		t.Fatalf("expected a single Welcome frame, got %v", frames)
	}
	r := packet.NewReader(frames[0])
	if got := r.ReadD(); got != p.ID {
		t.Fatalf("welcome player id=%d want %d", got, p.ID)
	}
}

func TestJoin_RejectsBadName(t *testing.T) {
	deps := newTestDeps(t)

	for _, name := range []string{"", "   ", "abcdefghijklmnopq"} {
		sess := newTestSession(1)
		HandleJoin(deps, sess, joinFrame(name))
		if deps.World.GetBySession(1) != nil {
			t.Fatalf("player admitted with name %q", name)
		}
		frames := sentFrames(sess)
		if len(frames) != 1 || frames[0][0] != packet.S_OPCODE_REJECT {
			t.Fatalf("expected Reject for %q, got %v", name, frames)
		}
		r := packet.NewReader(frames[0])
		if code := r.ReadC(); code != packet.RejectBadName {
			t.Fatalf("code=%d want %d", code, packet.RejectBadName)
		}
	}
}

func TestJoin_RejectsWhenFull(t *testing.T) {
	deps := newTestDeps(t)
	deps.Cfg.World.MaxPlayers = 1

	HandleJoin(deps, newTestSession(1), joinFrame("first"))

	sess := newTestSession(2)
	HandleJoin(deps, sess, joinFrame("second"))
	if deps.World.GetBySession(2) != nil {
		t.Fatalf("player admitted past max_players")
	}
	frames := sentFrames(sess)
	r := packet.NewReader(frames[0])
	if code := r.ReadC(); code != packet.RejectServerFull {
		t.Fatalf("code=%d want %d", code, packet.RejectServerFull)
	}
}

func TestJoin_RespawnKeepsPlayerID(t *testing.T) {
	deps := newTestDeps(t)
	sess := newTestSession(1)

	HandleJoin(deps, sess, joinFrame("blob"))
	p := deps.World.GetBySession(1)
	id := p.ID

	// Simulate death.
	p.Dead = true
	p.Cells = nil
	sess.SetState(packet.StateDead)

	HandleJoin(deps, sess, joinFrame("blob"))
	if p.Dead {
		t.Fatalf("still dead after respawn")
	}
	if p.ID != id {
		t.Fatalf("player id changed on respawn: %d → %d", id, p.ID)
	}
	if len(p.Cells) != 1 {
		t.Fatalf("cells=%d want 1 after respawn", len(p.Cells))
	}
	if !p.NeedFull {
		t.Fatalf("respawn must schedule a full snapshot")
	}
}

func TestJoin_DuplicateIsDropped(t *testing.T) {
	deps := newTestDeps(t)
	sess := newTestSession(1)

	HandleJoin(deps, sess, joinFrame("blob"))
	p := deps.World.GetBySession(1)
	sentFrames(sess) // discard the Welcome

	HandleJoin(deps, sess, joinFrame("blob"))
	if len(p.Cells) != 1 {
		t.Fatalf("duplicate join spawned a cell: %d", len(p.Cells))
	}
	if frames := sentFrames(sess); len(frames) != 0 {
		t.Fatalf("duplicate join answered: %v", frames)
	}
}

func TestMove_EnqueuesValidatedCommand(t *testing.T) {
	deps := newTestDeps(t)
	sess := newTestSession(1)
	HandleJoin(deps, sess, joinFrame("blob"))
	p := deps.World.GetBySession(1)

	HandleMove(deps, sess, moveFrame(1, 3, 4))

	if len(p.Inbox) != 1 {
		t.Fatalf("inbox=%d want 1", len(p.Inbox))
	}
	cmd := p.Inbox[0]
	if cmd.Kind != world.CmdMove || cmd.Seq != 1 {
		t.Fatalf("bad command: %+v", cmd)
	}
	// Over-unit vectors arrive normalized.
	l := math.Sqrt(float64(cmd.DX)*float64(cmd.DX) + float64(cmd.DY)*float64(cmd.DY))
	if math.Abs(l-1) > 1e-5 {
		t.Fatalf("direction length=%v want 1", l)
	}
	if p.LastSeq != 1 {
		t.Fatalf("LastSeq=%d want 1", p.LastSeq)
	}
}

func TestMove_DropsStaleAndCorruptSilently(t *testing.T) {
	deps := newTestDeps(t)
	sess := newTestSession(1)
	HandleJoin(deps, sess, joinFrame("blob"))
	p := deps.World.GetBySession(1)
	sentFrames(sess)

	HandleMove(deps, sess, moveFrame(5, 1, 0))

	cases := []*packet.Reader{
		moveFrame(5, 1, 0),                      // duplicate seq
		moveFrame(3, 1, 0),                      // regressed seq
		moveFrame(6, float32(math.NaN()), 0),    // NaN
		moveFrame(7, float32(math.Inf(1)), 0),   // Inf
		moveFrame(8, 1e9, 1e9),                  // absurd magnitude
	}
	for _, r := range cases {
		HandleMove(deps, sess, r)
	}

	if len(p.Inbox) != 1 {
		t.Fatalf("inbox=%d want 1 (only the first valid move)", len(p.Inbox))
	}
	if sess.Rejected != uint64(len(cases)) {
		t.Fatalf("rejected=%d want %d", sess.Rejected, len(cases))
	}
	if frames := sentFrames(sess); len(frames) != 0 {
		t.Fatalf("rejection must be silent, got %v", frames)
	}
	// A corrupt frame must not burn the sequence window.
	if p.LastSeq != 5 {
		t.Fatalf("LastSeq=%d want 5", p.LastSeq)
	}
}

func TestSplit_CellCapIsSurfacedRejection(t *testing.T) {
	deps := newTestDeps(t)
	deps.Cfg.World.MaxCellsPerPlayer = 1
	sess := newTestSession(1)
	HandleJoin(deps, sess, joinFrame("blob"))
	p := deps.World.GetBySession(1)
	sentFrames(sess)

	w := packet.NewWriterWithOpcode(packet.C_OPCODE_SPLIT)
	w.WriteD(1)
	HandleSplit(deps, sess, packet.NewReader(w.Bytes()))

	if len(p.Inbox) != 0 {
		t.Fatalf("split enqueued at the cell cap")
	}
	frames := sentFrames(sess)
	if len(frames) != 1 || frames[0][0] != packet.S_OPCODE_REJECT {
		t.Fatalf("expected Reject frame, got %v", frames)
	}
	r := packet.NewReader(frames[0])
	if code := r.ReadC(); code != packet.RejectTooManyCells {
		t.Fatalf("code=%d want %d", code, packet.RejectTooManyCells)
	}
}

func TestPing_EchoesNonce(t *testing.T) {
	deps := newTestDeps(t)
	sess := newTestSession(1)

	w := packet.NewWriterWithOpcode(packet.C_OPCODE_PING)
	w.WriteD(0xDEADBEEF)
	HandlePing(deps, sess, packet.NewReader(w.Bytes()))

	frames := sentFrames(sess)
	if len(frames) != 1 || frames[0][0] != packet.S_OPCODE_PONG {
		t.Fatalf("expected Pong, got %v", frames)
	}
	r := packet.NewReader(frames[0])
	if nonce := r.ReadD(); nonce != 0xDEADBEEF {
		t.Fatalf("nonce=%x want deadbeef", nonce)
	}
}
