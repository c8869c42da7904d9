package wsbridge

import (
	"fmt"
	"unicode/utf8"
)

// StatusCode represents the encoded reason for closure of a websocket
// connection.
//
// There are few helper methods on StatusCode that help to define the range in
// which a given code lays, accordingly to ranges defined in the
// specification.
//
// See https://tools.ietf.org/html/rfc6455#section-7.4
type StatusCode uint16

// StatusCodeRange describes a range of StatusCode values.
type StatusCodeRange struct {
	Min, Max StatusCode
}

// Status code ranges defined by specification.
// See https://tools.ietf.org/html/rfc6455#section-7.4.2
var (
	StatusRangeNotInUse    = StatusCodeRange{0, 999}
	StatusRangeProtocol    = StatusCodeRange{1000, 2999}
	StatusRangeApplication = StatusCodeRange{3000, 3999}
	StatusRangePrivate     = StatusCodeRange{4000, 4999}
)

// Status codes defined by specification.
// See https://tools.ietf.org/html/rfc6455#section-7.4.1
const (
	StatusNormalClosure           StatusCode = 1000
	StatusGoingAway               StatusCode = 1001
	StatusProtocolError           StatusCode = 1002
	StatusUnsupportedData         StatusCode = 1003
	StatusNoMeaningYet            StatusCode = 1004
	StatusNoStatusRcvd            StatusCode = 1005
	StatusAbnormalClosure         StatusCode = 1006
	StatusInvalidFramePayloadData StatusCode = 1007
	StatusPolicyViolation         StatusCode = 1008
	StatusMessageTooBig           StatusCode = 1009
	StatusMandatoryExt            StatusCode = 1010
	StatusInternalServerError     StatusCode = 1011
	StatusTLSHandshake            StatusCode = 1015
)

// MaxCloseReasonLength is the maximum number of bytes a close reason may
// occupy. Close frames are control frames, whose payload (status code plus
// reason) is limited to 125 bytes by RFC 6455.
const MaxCloseReasonLength = 123

// In reports whether the code is defined in given range.
func (s StatusCode) In(r StatusCodeRange) bool {
	return r.Min <= s && s <= r.Max
}

// IsNotUsed reports whether the code is in a range of codes that must never
// be used.
func (s StatusCode) IsNotUsed() bool {
	return s.In(StatusRangeNotInUse)
}

// IsProtocolReserved reports whether the code is reserved by RFC 6455 and
// must never be sent in a close frame by an endpoint.
func (s StatusCode) IsProtocolReserved() bool {
	switch s {
	// [RFC6455]: These values are reserved and MUST NOT be set as a status
	// code in a Close control frame by an endpoint.
	case StatusNoMeaningYet, StatusNoStatusRcvd, StatusAbnormalClosure, StatusTLSHandshake:
		return true
	default:
		return false
	}
}

// IsProtocolSpec reports whether the code is in the range reserved by the
// protocol specification.
func (s StatusCode) IsProtocolSpec() bool {
	return s.In(StatusRangeProtocol)
}

// IsProtocolDefined reports whether the code has a meaning defined by RFC
// 6455.
func (s StatusCode) IsProtocolDefined() bool {
	return (s >= StatusNormalClosure && s <= StatusInternalServerError) || s == StatusTLSHandshake
}

// Errors returned by CheckCloseStatus.
var (
	ErrStatusNotInUse    = fmt.Errorf("close status code is not in use")
	ErrStatusReserved    = fmt.Errorf("close status code is reserved")
	ErrStatusUndefined   = fmt.Errorf("close status code is not defined by protocol specification")
	ErrReasonTooLong     = fmt.Errorf("close reason exceeds 123 bytes")
	ErrReasonInvalidUTF8 = fmt.Errorf("invalid utf8 sequence in close reason")
)

// CheckCloseStatus validates a caller-supplied close status code and reason
// before either is handed to a native transport. It is a usage check: a
// failure means the caller picked a code an endpoint is not allowed to send.
func CheckCloseStatus(code StatusCode, reason string) error {
	switch {
	case code.IsNotUsed():
		return ErrStatusNotInUse

	case code.IsProtocolReserved():
		return ErrStatusReserved

	case code.IsProtocolSpec() && !code.IsProtocolDefined():
		return ErrStatusUndefined

	case len(reason) > MaxCloseReasonLength:
		return ErrReasonTooLong

	case !utf8.ValidString(reason):
		return ErrReasonInvalidUTF8

	default:
		return nil
	}
}
