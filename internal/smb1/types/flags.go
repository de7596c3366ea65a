package types

// HeaderFlags is the single-byte Flags field of the SMB1 header.
type HeaderFlags uint8

const (
	FlagReply        HeaderFlags = 0x80 // response (vs. request)
	FlagCanonicalPathnames HeaderFlags = 0x10
	FlagCaseInsensitive    HeaderFlags = 0x08
)

// HeaderFlags2 is the two-byte Flags2 field of the SMB1 header.
type HeaderFlags2 uint16

const (
	Flags2LongNames      HeaderFlags2 = 0x0001
	Flags2EAs            HeaderFlags2 = 0x0002
	Flags2SecuritySig    HeaderFlags2 = 0x0004
	Flags2ExtendedSec    HeaderFlags2 = 0x0800
	Flags2DFS            HeaderFlags2 = 0x1000
	Flags2PagingIO       HeaderFlags2 = 0x2000
	Flags2NTStatus       HeaderFlags2 = 0x4000 // a.k.a. FLG2_LONGERRORCODE: use NT_STATUS instead of DOS class/code
	Flags2Unicode        HeaderFlags2 = 0x8000
)

// UsesNTStatus reports whether the client asked for 32-bit NT_STATUS codes
// rather than the legacy DOS (class, code) pair, per §6.
func (f HeaderFlags2) UsesNTStatus() bool { return f&Flags2NTStatus != 0 }

// IsUnicode reports whether strings in this message are UTF-16LE.
func (f HeaderFlags2) IsUnicode() bool { return f&Flags2Unicode != 0 }

// FileAttributes mirrors the classic DOS/NT file-attribute bitmask used in
// search results, QUERY/SET_FILE_INFO, and NT_CREATE_ANDX.
type FileAttributes uint32

const (
	AttrReadonly    FileAttributes = 0x0001
	AttrHidden      FileAttributes = 0x0002
	AttrSystem      FileAttributes = 0x0004
	AttrVolumeID    FileAttributes = 0x0008
	AttrDirectory   FileAttributes = 0x0010
	AttrArchive     FileAttributes = 0x0020
	AttrNormal      FileAttributes = 0x0080
	AttrTemporary   FileAttributes = 0x0100

	// StandardAttributesMask is the 0x3F byte mask legacy SEARCH responses
	// apply to the per-entry attribute byte (§4.4).
	StandardAttributesMask FileAttributes = 0x3F
)

// OplockRequest bits carried in NT_CREATE_ANDX's flags field.
type OplockRequest uint8

const (
	OplockNone      OplockRequest = 0
	OplockExclusive OplockRequest = 1
	OplockBatch     OplockRequest = 2
	OplockLevelII   OplockRequest = 3
)

// LockingAndXFlags bits, §4.9.
type LockingAndXFlags uint8

const (
	LockingAndXFlagOplockBreak  LockingAndXFlags = 0x01
	LockingAndXFlagLevelIIOplock LockingAndXFlags = 0x08
	LockingAndXFlagLargeFiles   LockingAndXFlags = 0x10
	LockingAndXFlagCancelLock   LockingAndXFlags = 0x04
)

// NotifyFilter is the change-notification filter bitset, §3/§4.8.
type NotifyFilter uint32

const (
	NotifyFileName      NotifyFilter = 0x00000001
	NotifyDirName       NotifyFilter = 0x00000002
	NotifyAttributes    NotifyFilter = 0x00000004
	NotifySize          NotifyFilter = 0x00000008
	NotifyLastWrite     NotifyFilter = 0x00000010
	NotifySecurity      NotifyFilter = 0x00000100
	NotifyStreamName    NotifyFilter = 0x00000200
	NotifyEA            NotifyFilter = 0x00000080
)

// NotifyAction values used in NT_TRANSACT_NOTIFY change records, §4.8.
type NotifyAction uint32

const (
	NotifyActionAdded          NotifyAction = 1
	NotifyActionRemoved        NotifyAction = 2
	NotifyActionModified       NotifyAction = 3
	NotifyActionRenamedOldName NotifyAction = 4
	NotifyActionRenamedNewName NotifyAction = 5
)
