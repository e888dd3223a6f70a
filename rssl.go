package rssl

import (
	"fmt"
	"time"
)

const (
	// BufferIntegrity is the marker stored in a Buffer handed out by GetBuffer.
	BufferIntegrity = 69
	// PoolPreallocSize is the number of Channels and Servers preallocated on first initialization.
	PoolPreallocSize = 10
	// MaxTransports is the number of slots in the transport Registry.
	MaxTransports = 8
	// SeqMcastHeaderSize is the number of bytes in a sequenced multicast header.
	SeqMcastHeaderSize = 12
	// SeqMcastMaxHeaderLen is the header size plus the length of the first message.
	SeqMcastMaxHeaderLen = SeqMcastHeaderSize + 2
	// SeqMcastPingLen is the size of a ping datagram.
	SeqMcastPingLen = SeqMcastHeaderSize
	// SeqMcastMaxMsgSize is the upper limit for the sequenced multicast MaxMsgSize.
	SeqMcastMaxMsgSize = 65493
	// SeqMcastVersion is the only header version understood.
	SeqMcastVersion = 1
	// DefaultPingTimeout is the ping timeout used when none is given, in seconds.
	DefaultPingTimeout = 60
	// DefaultShmemSlots is the number of ring slots in a shared memory segment.
	DefaultShmemSlots = 64
	// DefaultConnectTimeout bounds blocking connects.
	DefaultConnectTimeout = time.Second * 10
)

var (
	// DefaultMaxFragmentSize is the socket fragment size offered by servers (configurable).
	DefaultMaxFragmentSize = 6144
	// DefaultMaxOutputBuffers is the per channel limit of outstanding write buffers (configurable).
	DefaultMaxOutputBuffers = 50
	// DefaultShmemMaxMsgSize is the slot payload size of new shared memory segments (configurable).
	DefaultShmemMaxMsgSize = 6144
	// DefaultSeqMcastMaxMsgSize is used when ConnectOptions does not set one (configurable).
	DefaultSeqMcastMaxMsgSize = 3000
)

// raceEnabled is true when built with the race detector.
var raceEnabled bool

// ProtocolType values recognized by the trace subsystem.
const (
	ProtocolRWF  = 0
	ProtocolJSON = 2
)

// ConnectionType selects the transport backend.
type ConnectionType int

const (
	ConnTypeInit          ConnectionType = -1
	ConnTypeSocket        ConnectionType = 0
	ConnTypeEncrypted     ConnectionType = 1
	ConnTypeHTTP          ConnectionType = 2
	ConnTypeUnidirShmem   ConnectionType = 3
	ConnTypeReliableMcast ConnectionType = 4
	ConnTypeExtLineSocket ConnectionType = 5
	ConnTypeSeqMcast      ConnectionType = 6
	ConnTypeWebSocket     ConnectionType = 7
)

var connTypeTexts = map[ConnectionType]string{
	ConnTypeInit:          "Init",
	ConnTypeSocket:        "Socket",
	ConnTypeEncrypted:     "Encrypted",
	ConnTypeHTTP:          "HTTP",
	ConnTypeUnidirShmem:   "UnidirShmem",
	ConnTypeReliableMcast: "ReliableMcast",
	ConnTypeExtLineSocket: "ExtLineSocket",
	ConnTypeSeqMcast:      "SeqMcast",
	ConnTypeWebSocket:     "WebSocket",
}

func (ct ConnectionType) String() string {
	if s, ok := connTypeTexts[ct]; ok {
		return s
	}
	return "Unknown"
}

// ChannelState is the state of a Channel or Server.
type ChannelState int32

const (
	StateClosed       ChannelState = -1
	StateInactive     ChannelState = 0
	StateInitializing ChannelState = 1
	StateActive       ChannelState = 2
)

var channelStateTexts = map[ChannelState]string{
	StateClosed:       "Closed",
	StateInactive:     "Inactive",
	StateInitializing: "Initializing",
	StateActive:       "Active",
}

func (cs ChannelState) String() string {
	if s, ok := channelStateTexts[cs]; ok {
		return s
	}
	return "Unknown"
}

// LockingType selects how the library serializes access to shared state.
type LockingType int

const (
	// LockNone performs no locking at all.
	LockNone LockingType = 0
	// LockGlobalAndChannel locks both the global pools and each Channel.
	LockGlobalAndChannel LockingType = 1
	// LockGlobal locks only the global pools.
	LockGlobal LockingType = 2
)

// WritePriority orders queued output on transports that support it.
type WritePriority int

const (
	PriorityHigh   WritePriority = 0
	PriorityMedium WritePriority = 1
	PriorityLow    WritePriority = 2
)

// ReadOutFlag describes which ReadOutArgs fields were set by a read.
type ReadOutFlag int

const (
	ReadOutFTGroup    ReadOutFlag = 0x01
	ReadOutNodeID     ReadOutFlag = 0x02
	ReadOutSeqNum     ReadOutFlag = 0x04
	ReadOutHashID     ReadOutFlag = 0x08
	ReadOutUnicast    ReadOutFlag = 0x10
	ReadOutInstanceID ReadOutFlag = 0x20
	ReadOutRetransmit ReadOutFlag = 0x40
)

// WriteInFlag modifies how Write handles a buffer.
type WriteInFlag int

const (
	WriteInDoNotCompress     WriteInFlag = 0x01
	WriteInDirectSocketWrite WriteInFlag = 0x02
	WriteInSeqNum            WriteInFlag = 0x04
	WriteInRetransmit        WriteInFlag = 0x10
)

// IoctlCode selects the option changed by Ioctl.
type IoctlCode int

const (
	IoctlMaxNumBuffers        IoctlCode = 1
	IoctlNumGuaranteedBuffers IoctlCode = 2
	IoctlHighWaterMark        IoctlCode = 3
	IoctlSystemWriteBuffers   IoctlCode = 4
	IoctlSystemReadBuffers    IoctlCode = 5
	IoctlServerNumPoolBuffers IoctlCode = 6
	IoctlCompressionThreshold IoctlCode = 7
	IoctlPriorityFlushOrder   IoctlCode = 8
	IoctlServerPeakBufReset   IoctlCode = 9
	IoctlDebugFlags           IoctlCode = 10
	IoctlTrace                IoctlCode = 11
	IoctlRegisterHashID       IoctlCode = 14
	IoctlUnregisterHashID     IoctlCode = 15
)

// NodeID identifies the sender of a multicast datagram.
type NodeID struct {
	Addr uint32 // IPv4 address in host order
	Port uint16
}

func (n NodeID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", byte(n.Addr>>24), byte(n.Addr>>16), byte(n.Addr>>8), byte(n.Addr), n.Port)
}

// ReadOutArgs receives per-read metadata.
type ReadOutArgs struct {
	Flags                 ReadOutFlag
	SeqNum                uint32
	NodeID                NodeID
	InstanceID            uint16
	BytesRead             int
	UncompressedBytesRead int
}

// WriteInArgs carries per-write options.
type WriteInArgs struct {
	Flags    WriteInFlag
	Priority WritePriority
	SeqNum   uint32
}

// WriteOutArgs receives per-write results.
type WriteOutArgs struct {
	BytesWritten             int
	UncompressedBytesWritten int
}

// MulticastStats counts multicast packets.
type MulticastStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
}

// ChannelInfo describes a connected Channel.
type ChannelInfo struct {
	MaxFragmentSize         int
	MaxOutputBuffers        int
	GuaranteedOutputBuffers int
	NumInputBuffers         int
	PingTimeout             int
	SysSendBufSize          int
	SysRecvBufSize          int
	ComponentInfo           string
	MulticastStats          MulticastStats
}

// ServerInfo describes a bound Server.
type ServerInfo struct {
	CurrentBufferUsage int
	PeakBufferUsage    int
}
