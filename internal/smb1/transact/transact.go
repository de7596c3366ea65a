// Package transact implements the multi-fragment TRANS/TRANS2/NT_TRANSACT
// reassembly accumulator (§3 "TransactBuffer", §4.5).
package transact

import "errors"

// Kind distinguishes the three transaction families (§3, §4.5).
type Kind int

const (
	KindTrans Kind = iota
	KindTrans2
	KindNTTransact
)

// Buffer is a reassembly accumulator for one multi-fragment transaction.
// At most one is outstanding per VirtualCircuit (§3 invariant i).
type Buffer struct {
	Kind        Kind
	SubFunction uint16 // sub-command / NT function code selecting the fan-out target
	Setup       []uint16

	TotalParamCount uint32
	TotalDataCount  uint32
	MaxParamReturn  uint32
	MaxDataReturn   uint32
	MaxSetupReturn  uint8

	Param []byte // growing parameter buffer
	Data  []byte // growing data buffer
}

// NewBuffer allocates a Buffer sized to the primary request's declared
// totals.
func NewBuffer(kind Kind, subFunction uint16, totalParam, totalData uint32) *Buffer {
	return &Buffer{
		Kind:            kind,
		SubFunction:     subFunction,
		TotalParamCount: totalParam,
		TotalDataCount:  totalData,
		Param:           make([]byte, totalParam),
		Data:            make([]byte, totalData),
	}
}

// ErrFragmentOutOfRange is returned when a secondary's displacement+length
// would overrun the declared totals (a malformed or adversarial secondary).
var ErrFragmentOutOfRange = errors.New("smb1: transaction fragment out of declared range")

// PutParam writes a parameter fragment at the given displacement,
// tolerating out-of-order secondary arrival (§4.5).
func (b *Buffer) PutParam(displacement uint32, data []byte) error {
	end := int(displacement) + len(data)
	if end > len(b.Param) {
		return ErrFragmentOutOfRange
	}
	copy(b.Param[displacement:], data)
	return nil
}

// PutData writes a data fragment at the given displacement.
func (b *Buffer) PutData(displacement uint32, data []byte) error {
	end := int(displacement) + len(data)
	if end > len(b.Data) {
		return ErrFragmentOutOfRange
	}
	copy(b.Data[displacement:], data)
	return nil
}

// Ready reports whether every declared byte has arrived (§3 invariant ii,
// §8 property 10).
func (b *Buffer) Ready(paramReceived, dataReceived uint32) bool {
	return paramReceived >= b.TotalParamCount && dataReceived >= b.TotalDataCount
}
