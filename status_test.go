package wsbridge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCloseStatus(t *testing.T) {
	for _, test := range []struct {
		label  string
		code   StatusCode
		reason string
		err    error
	}{
		{
			label: "normal",
			code:  StatusNormalClosure,
		},
		{
			label:  "normal with reason",
			code:   StatusNormalClosure,
			reason: "bye",
		},
		{
			label: "going away",
			code:  StatusGoingAway,
		},
		{
			label: "application range",
			code:  3001,
		},
		{
			label: "private range",
			code:  4999,
		},
		{
			label: "not in use",
			code:  999,
			err:   ErrStatusNotInUse,
		},
		{
			label: "zero",
			code:  0,
			err:   ErrStatusNotInUse,
		},
		{
			label: "reserved no status",
			code:  StatusNoStatusRcvd,
			err:   ErrStatusReserved,
		},
		{
			label: "reserved abnormal",
			code:  StatusAbnormalClosure,
			err:   ErrStatusReserved,
		},
		{
			label: "reserved tls",
			code:  StatusTLSHandshake,
			err:   ErrStatusReserved,
		},
		{
			label: "undefined protocol code",
			code:  1012,
			err:   ErrStatusUndefined,
		},
		{
			label:  "reason too long",
			code:   StatusNormalClosure,
			reason: strings.Repeat("x", MaxCloseReasonLength+1),
			err:    ErrReasonTooLong,
		},
		{
			label:  "reason invalid utf8",
			code:   StatusNormalClosure,
			reason: string([]byte{0xff, 0xfe}),
			err:    ErrReasonInvalidUTF8,
		},
	} {
		t.Run(test.label, func(t *testing.T) {
			err := CheckCloseStatus(test.code, test.reason)
			assert.ErrorIs(t, err, test.err)
		})
	}
}
