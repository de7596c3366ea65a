package types

import "fmt"

// DOSClass is the error class byte of the legacy DOS status pair
// (class, code) [MS-CIFS] 2.2.2.5.1.
type DOSClass uint8

const (
	DOSClassSuccess DOSClass = 0x00
	ErrDos          DOSClass = 0x01
	ErrSrv          DOSClass = 0x02
	ErrHrd          DOSClass = 0x03
)

// DOSCode is the error code word paired with a DOSClass.
type DOSCode uint16

const (
	DOSSuccess              DOSCode = 0
	DOSInvalidFunction      DOSCode = 1
	DOSFileNotFound         DOSCode = 2
	DOSPathNotFound         DOSCode = 3
	DOSTooManyOpenFiles     DOSCode = 4
	DOSAccessDenied         DOSCode = 5
	DOSInvalidHandle        DOSCode = 6
	DOSInvalidDrive         DOSCode = 15
	DOSFileAlreadyExists    DOSCode = 80
	DOSNoMoreFiles          DOSCode = 18
	DOSFileSharingConflict  DOSCode = 32
	DOSLockConflict         DOSCode = 33
	DOSDiskFull             DOSCode = 39
)

const (
	SRVNonSpecificError     DOSCode = 1
	SRVUnrecognizedCommand  DOSCode = 3
	SRVNoResourcesAvailable DOSCode = 18
	SRVNotSupported         DOSCode = 50
)

const (
	HRDReadFault     DOSCode = 30
	HRDWriteFault    DOSCode = 29
	HRDDriveNotReady DOSCode = 21
)

// Status is the 32-bit NT_STATUS code [MS-ERREF] 2.3.
type Status uint32

const (
	NTSuccess               Status = 0x00000000
	NTPending               Status = 0x00000103
	NTCancelled             Status = 0xC0000120
	NTInvalidParameter      Status = 0xC000000D
	NTAccessDenied          Status = 0xC0000022
	NTObjectNotFound        Status = 0xC0000034 // STATUS_OBJECT_NAME_NOT_FOUND
	Win32InvalidHandle      Status = 0xC0000008 // STATUS_INVALID_HANDLE
	NTObjectPathNotFound    Status = 0xC000003A
	NTObjectNameCollision   Status = 0xC0000035
	NTSharingViolation      Status = 0xC0000043
	NTLockNotGranted        Status = 0xC0000055
	NTRangeNotLocked        Status = 0xC000007E
	NTDiskFull              Status = 0xC000007F
	NTNotImplemented        Status = 0xC0000002
	NTNoSuchFile            Status = 0xC000000F
	NTBufferTooSmall        Status = 0xC0000023 // warning when combined with severity bits, used as plain value here
	NTNotifyEnumDir         Status = 0x0000010C
	NTNoMoreFiles           Status = 0x80000006
)

// Outcome is a dual-form wire status: the legacy DOS (class, code) pair and
// its 32-bit NT_STATUS equivalent. The dispatcher picks one or the other
// per §6/§7 depending on FLG2_LONGERRORCODE in the request's flags2.
type Outcome struct {
	Name     string
	NT       Status
	DOSClass DOSClass
	DOSCode  DOSCode
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s (NT=0x%08X DOS=%d/%d)", o.Name, uint32(o.NT), o.DOSClass, o.DOSCode)
}

// IsSuccess reports whether this outcome represents SMB_COM success.
func (o Outcome) IsSuccess() bool { return o.NT == NTSuccess }

// Well-known dual-form outcomes used throughout the handlers and
// documented in §7's taxonomy.
var (
	Success             = Outcome{"SUCCESS", NTSuccess, DOSClassSuccess, DOSSuccess}
	ErrUnrecognizedCmd   = Outcome{"SRV_UNRECOGNIZED_COMMAND", NTInvalidParameter, ErrSrv, SRVUnrecognizedCommand}
	ErrInvalidParameter  = Outcome{"INVALID_PARAMETER", NTInvalidParameter, ErrSrv, SRVUnrecognizedCommand}
	ErrInvalidTID        = Outcome{"INVALID_TID", NTInvalidParameter, ErrDos, DOSInvalidDrive}
	ErrInvalidUID        = Outcome{"INVALID_UID", NTInvalidParameter, ErrDos, DOSInvalidDrive}
	ErrAccessDenied      = Outcome{"ACCESS_DENIED", NTAccessDenied, ErrDos, DOSAccessDenied}
	ErrInvalidHandle     = Outcome{"INVALID_HANDLE", Win32InvalidHandle, ErrDos, DOSInvalidHandle}
	ErrNoMoreFiles       = Outcome{"NO_MORE_FILES", NTNoSuchFile, ErrDos, DOSNoMoreFiles}
	ErrSharingViolation  = Outcome{"SHARING_VIOLATION", NTSharingViolation, ErrDos, DOSFileSharingConflict}
	ErrLockNotGranted    = Outcome{"LOCK_NOT_GRANTED", NTLockNotGranted, ErrDos, DOSLockConflict}
	ErrRangeNotLocked    = Outcome{"RANGE_NOT_LOCKED", NTRangeNotLocked, ErrSrv, SRVNonSpecificError}
	ErrObjectNotFound    = Outcome{"OBJECT_NOT_FOUND", NTObjectNotFound, ErrDos, DOSFileNotFound}
	ErrPathNotFound      = Outcome{"PATH_NOT_FOUND", NTObjectPathNotFound, ErrDos, DOSPathNotFound}
	ErrNameCollision     = Outcome{"NAME_COLLISION", NTObjectNameCollision, ErrDos, DOSFileAlreadyExists}
	ErrDiskFull          = Outcome{"DISK_FULL", NTDiskFull, ErrHrd, DOSDiskFull}
	ErrTooManyOpenFiles  = Outcome{"TOO_MANY_OPEN_FILES", NTInvalidParameter, ErrDos, DOSTooManyOpenFiles}
	ErrNoResources       = Outcome{"NO_RESOURCES_AVAILABLE", NTInvalidParameter, ErrSrv, SRVNoResourcesAvailable}
	ErrNotImplemented    = Outcome{"NOT_IMPLEMENTED", NTNotImplemented, ErrSrv, SRVNotSupported}
	ErrNotSupported      = Outcome{"NOT_SUPPORTED", NTNotImplemented, ErrSrv, SRVNotSupported}
	ErrReadFault         = Outcome{"READ_FAULT", NTInvalidParameter, ErrHrd, HRDReadFault}
	ErrWriteFault        = Outcome{"WRITE_FAULT", NTInvalidParameter, ErrHrd, HRDWriteFault}
	ErrDriveNotReady     = Outcome{"DRIVE_NOT_READY", NTInvalidParameter, ErrHrd, HRDDriveNotReady}
	ErrCancelled         = Outcome{"CANCELLED", NTCancelled, ErrSrv, SRVNonSpecificError}
	ErrBufferTooSmall    = Outcome{"BUFFER_TOO_SMALL", NTBufferTooSmall, ErrSrv, SRVNonSpecificError}
	ErrNotifyEnumDir     = Outcome{"NOTIFY_ENUM_DIR", NTNotifyEnumDir, ErrSrv, SRVNonSpecificError}
	ErrNonSpecific       = Outcome{"NON_SPECIFIC_ERROR", NTInvalidParameter, ErrSrv, SRVNonSpecificError}
)
