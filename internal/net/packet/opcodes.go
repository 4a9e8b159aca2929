package packet

// Client→server opcodes.
const (
	C_OPCODE_JOIN  byte = 0x01
	C_OPCODE_MOVE  byte = 0x02
	C_OPCODE_SPLIT byte = 0x03
	C_OPCODE_EJECT byte = 0x04
	C_OPCODE_PING  byte = 0x05
	C_OPCODE_QUIT  byte = 0x06
)

// Server→client opcodes.
const (
	S_OPCODE_WELCOME     byte = 0x65
	S_OPCODE_SNAPSHOT    byte = 0x66
	S_OPCODE_DELTA       byte = 0x67
	S_OPCODE_REJECT      byte = 0x68
	S_OPCODE_PONG        byte = 0x69
	S_OPCODE_LEADERBOARD byte = 0x6A
	S_OPCODE_DEAD        byte = 0x6B
)

// S_OPCODE_REJECT codes.
const (
	RejectServerFull   byte = 1
	RejectTooManyCells byte = 2
	RejectBadName      byte = 3
)

// Entity kind tags on the wire. Matches world.Kind values.
const (
	WireKindCell    byte = 1
	WireKindFood    byte = 2
	WireKindVirus   byte = 3
	WireKindEjected byte = 4
)

// SnapshotFlagZstd marks a snapshot whose entity block is zstd-compressed.
const SnapshotFlagZstd byte = 0x01
