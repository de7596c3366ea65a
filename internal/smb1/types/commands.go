// Package types holds SMB1 (CIFS) wire constants: command codes, status
// codes, header flags, and file-attribute bits. It mirrors the layered
// "types" package a dispatcher and its handlers both import, keeping every
// wire-level magic number in one place.
package types

// Command identifies an SMB1 command byte [MS-CIFS] 2.2.4.
type Command uint8

// Core SMB1 command codes this engine dispatches. Names follow the
// historical CIFS/jCIFS command identifiers.
const (
	ComCreateDirectory    Command = 0x00
	ComDeleteDirectory    Command = 0x01
	ComOpen               Command = 0x02
	ComCreate             Command = 0x03
	ComClose              Command = 0x04
	ComFlush              Command = 0x05
	ComDelete             Command = 0x06
	ComRename             Command = 0x07
	ComQueryInformation   Command = 0x08
	ComSetInformation     Command = 0x09
	ComRead               Command = 0x0A
	ComWrite              Command = 0x0B
	ComLockByteRange      Command = 0x0C
	ComUnlockByteRange    Command = 0x0D
	ComCreateTemporary    Command = 0x0E
	ComCreateNew          Command = 0x0F
	ComCheckDirectory     Command = 0x10
	ComProcessExit        Command = 0x11
	ComSeek               Command = 0x12
	ComLockingAndX        Command = 0x24
	ComTransaction        Command = 0x25
	ComTransactionSecondary Command = 0x26
	ComIoctl              Command = 0x27
	ComCopy               Command = 0x29
	ComEcho               Command = 0x2B
	ComWriteAndX          Command = 0x2F
	ComReadAndX           Command = 0x2E
	ComTransaction2       Command = 0x32
	ComTransaction2Secondary Command = 0x33
	ComFindClose2         Command = 0x34
	ComTreeDisconnect     Command = 0x71
	ComNegotiate          Command = 0x72
	ComSessionSetupAndX   Command = 0x73
	ComLogoffAndX         Command = 0x74
	ComTreeConnectAndX    Command = 0x75
	ComSearch             Command = 0x81
	ComNtTransact         Command = 0xA0
	ComNtTransactSecondary Command = 0xA1
	ComNtCreateAndX       Command = 0xA2
	ComNtCancel           Command = 0xA4
	ComOpenAndX           Command = 0x2D
)

// AndXCommandNone marks "no chained command follows" in an AndX block.
const AndXCommandNone uint8 = 0xFF

var commandNames = map[Command]string{
	ComCreateDirectory:       "SMB_COM_CREATE_DIRECTORY",
	ComDeleteDirectory:       "SMB_COM_DELETE_DIRECTORY",
	ComOpen:                  "SMB_COM_OPEN",
	ComCreate:                "SMB_COM_CREATE",
	ComClose:                 "SMB_COM_CLOSE",
	ComFlush:                 "SMB_COM_FLUSH",
	ComDelete:                "SMB_COM_DELETE",
	ComRename:                "SMB_COM_RENAME",
	ComQueryInformation:      "SMB_COM_QUERY_INFORMATION",
	ComSetInformation:        "SMB_COM_SET_INFORMATION",
	ComRead:                  "SMB_COM_READ",
	ComWrite:                 "SMB_COM_WRITE",
	ComLockByteRange:         "SMB_COM_LOCK_BYTE_RANGE",
	ComUnlockByteRange:       "SMB_COM_UNLOCK_BYTE_RANGE",
	ComCreateTemporary:       "SMB_COM_CREATE_TEMPORARY",
	ComCreateNew:             "SMB_COM_CREATE_NEW",
	ComCheckDirectory:        "SMB_COM_CHECK_DIRECTORY",
	ComProcessExit:           "SMB_COM_PROCESS_EXIT",
	ComSeek:                  "SMB_COM_SEEK",
	ComLockingAndX:           "SMB_COM_LOCKING_ANDX",
	ComTransaction:           "SMB_COM_TRANSACTION",
	ComTransactionSecondary:  "SMB_COM_TRANSACTION_SECONDARY",
	ComIoctl:                 "SMB_COM_IOCTL",
	ComCopy:                  "SMB_COM_COPY",
	ComEcho:                  "SMB_COM_ECHO",
	ComWriteAndX:             "SMB_COM_WRITE_ANDX",
	ComReadAndX:              "SMB_COM_READ_ANDX",
	ComTransaction2:          "SMB_COM_TRANSACTION2",
	ComTransaction2Secondary: "SMB_COM_TRANSACTION2_SECONDARY",
	ComFindClose2:            "SMB_COM_FIND_CLOSE2",
	ComTreeDisconnect:        "SMB_COM_TREE_DISCONNECT",
	ComNegotiate:             "SMB_COM_NEGOTIATE",
	ComSessionSetupAndX:      "SMB_COM_SESSION_SETUP_ANDX",
	ComLogoffAndX:            "SMB_COM_LOGOFF_ANDX",
	ComTreeConnectAndX:       "SMB_COM_TREE_CONNECT_ANDX",
	ComSearch:                "SMB_COM_SEARCH",
	ComNtTransact:            "SMB_COM_NT_TRANSACT",
	ComNtTransactSecondary:   "SMB_COM_NT_TRANSACT_SECONDARY",
	ComNtCreateAndX:          "SMB_COM_NT_CREATE_ANDX",
	ComNtCancel:              "SMB_COM_NT_CANCEL",
	ComOpenAndX:              "SMB_COM_OPEN_ANDX",
}

// String returns the canonical SMB_COM_* name, or "SMB_COM_UNKNOWN" for
// commands this engine doesn't recognize.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "SMB_COM_UNKNOWN"
}

// IsAndX reports whether a command embeds an AndX chaining block as its
// first two parameter words (§4.6).
func (c Command) IsAndX() bool {
	switch c {
	case ComLockingAndX, ComWriteAndX, ComReadAndX, ComSessionSetupAndX,
		ComLogoffAndX, ComTreeConnectAndX, ComNtCreateAndX, ComOpenAndX:
		return true
	default:
		return false
	}
}
