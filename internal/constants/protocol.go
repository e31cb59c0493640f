package constants

// Battle.net Chat Server (BNCS) Protocol Constants
//
// This file contains all protocol-level constants for the BNCS chat/auth
// protocol, the MCP realm protocol and the BNFTP file-transfer protocol.
// Values follow the legacy Battle.net wire protocol as documented by BNetDocs.

// Protocol selector bytes. The very first byte of every client connection
// selects the protocol spoken for the rest of the connection.
const (
	// ProtocolBNCS selects the primary chat/auth protocol.
	ProtocolBNCS = 0x01

	// ProtocolBNFTP selects the auxiliary file-transfer protocol.
	ProtocolBNFTP = 0x02

	// ProtocolMCP selects the realm protocol (realm server only accepts this).
	ProtocolMCP = 0x01
)

// BNCS frame structure.
const (
	// FrameMarker is the first byte of every BNCS frame.
	FrameMarker = 0xFF

	// FrameHeaderSize is the BNCS frame header size:
	// marker byte, message type byte, total length uint16 LE.
	FrameHeaderSize = 4

	// MaxFrameLength is the largest total frame length the uint16 field can carry.
	MaxFrameLength = 0xFFFF
)

// BNCS message types (SID_*).
const (
	SidNull                  = 0x00
	SidEnterChat             = 0x0A
	SidGetChannelList        = 0x0B
	SidJoinChannel           = 0x0C
	SidChatCommand           = 0x0E
	SidChatEvent             = 0x0F
	SidLeaveChat             = 0x10
	SidMessageBox            = 0x19
	SidPing                  = 0x25
	SidLogonResponse2        = 0x3A
	SidCreateAccount2        = 0x3D
	SidLogonRealmEx          = 0x3E
	SidQueryRealms2          = 0x40
	SidAuthInfo              = 0x50
	SidAuthCheck             = 0x51
	SidAuthAccountLogon      = 0x53
	SidAuthAccountLogonProof = 0x54
)

// Chat event IDs (EID_*) carried in the first dword of a SID_CHATEVENT payload.
const (
	EidShowUser            = 0x01
	EidJoin                = 0x02
	EidLeave               = 0x03
	EidWhisper             = 0x04
	EidBroadcast           = 0x06
	EidChannel             = 0x07
	EidUserFlags           = 0x09
	EidWhisperSent         = 0x0A
	EidChannelDoesNotExist = 0x0E
	EidTalk                = 0x0F
	EidInfo                = 0x12
	EidError               = 0x13
	EidEmote               = 0x17
)

// User flag bits carried in chat events.
const (
	// FlagOperator marks the channel operator.
	FlagOperator = 0x02
)

// Legacy filler values for the unused chat event dwords. Real Battle.net
// stopped populating these fields decades ago; clients ignore them.
const (
	LegacyAccountNumber = 0x0BADF00D
	LegacyRegAuthority  = 0x0BADF00D
)

// SID_LOGONRESPONSE2 status codes.
const (
	LogonStatusSuccess        = 0x00
	LogonStatusAccountUnknown = 0x01
	LogonStatusBadPassword    = 0x02
)

// SID_CREATEACCOUNT2 status codes.
const (
	CreateStatusSuccess       = 0x00
	CreateStatusAccountExists = 0x04
)

// MCP (realm protocol) frame structure.
const (
	// McpHeaderSize is the MCP frame header size: total length uint16 LE, type byte.
	McpHeaderSize = 3
)

// MCP message types (MCP_*).
const (
	McpStartup    = 0x01
	McpCharCreate = 0x02
	McpCreateGame = 0x03
	McpJoinGame   = 0x04
	McpGameList   = 0x05
	McpGameInfo   = 0x06
	McpCharLogon  = 0x07
	McpCharDelete = 0x0A
	McpMotd       = 0x12
	McpCharList2  = 0x19
)

// MCP_STARTUP result codes.
const (
	McpResultSuccess      = 0x00
	McpResultInvalidToken = 0x02
)

// BNFTP protocol constants.
const (
	// BnftpVersion1 is the only supported BNFTP protocol version.
	BnftpVersion1 = 0x0100

	// BnftpMinRequestSize is the smallest valid request header (no filename).
	BnftpMinRequestSize = 32
)

// Buffer sizing.
const (
	// DefaultReadBufSize covers the largest inbound frame payload.
	DefaultReadBufSize = 8192

	// DefaultSendBufSize covers the largest outbound frame we build.
	DefaultSendBufSize = 8192
)

// XSha1ProofSize is the size of the legacy password proof digest.
const XSha1ProofSize = 20
