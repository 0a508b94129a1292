package core

import (
	"net/http"
	"regexp"
)

const (
	ParamAppID         = "APPID"
	ParamDeviceID      = "DEVICEID"
	ParamKey           = "KEY"
	ParamCode          = "CODE"
	ParamToken         = "TOKEN"
	ParamKIN           = "KIN"
	ParamChecksum      = "CHECKSUM"
	ParamAppCheck      = "APPCHECK"
	ParamRequestID     = "RID"
	ParamTimestamp     = "TS"
	ParamID            = "ID"
	ParamState         = "STATE"
	ParamTransactionNo = "NO"
	ParamType          = "TYPE"
	ParamAmount        = "AMOUNT"
	ParamCurrency      = "CURRENCY"
	ParamRecipient     = "RCPT"
	ParamRecipientType = "RCPT_TYPE"
	ParamDescription   = "DESCRIPTION"
	ParamReason        = "REASON"
	ParamShow          = "SHOW"
	ParamPIN           = "PIN"
	ParamSaveCard      = "SAVECARD"
	ParamURLOK         = "URLOK"
	ParamURLCancel     = "URLCANCEL"
)

// Endpoint describes one provider operation. Flow selects the signature
// parameter and digest; ReadOnly endpoints are the only ones a caller may
// retry.
type Endpoint struct {
	Name     string
	Path     string
	Method   string
	Flow     Flow
	ReadOnly bool
	Redirect bool
}

var (
	EndpointStart           = Endpoint{Name: "start", Path: "/api/start", Method: http.MethodGet, Flow: FlowToken, ReadOnly: true, Redirect: true}
	EndpointCodeGet         = Endpoint{Name: "code_get", Path: "/api/code/get", Method: http.MethodGet, Flow: FlowToken, ReadOnly: true}
	EndpointTokenGet        = Endpoint{Name: "token_get", Path: "/api/token/get", Method: http.MethodGet, Flow: FlowToken}
	EndpointTokenInvalidate = Endpoint{Name: "token_invalidate", Path: "/api/token/invalidate", Method: http.MethodPost, Flow: FlowToken}
	EndpointUserInfo        = Endpoint{Name: "user_info", Path: "/api/user/info", Method: http.MethodGet, Flow: FlowToken, ReadOnly: true}
	EndpointPaymentInit     = Endpoint{Name: "payment_init", Path: "/api/payment/init", Method: http.MethodPost, Flow: FlowToken}
	EndpointPaymentCheck    = Endpoint{Name: "payment_check", Path: "/api/payment/check", Method: http.MethodPost, Flow: FlowToken, ReadOnly: true}
	EndpointPaymentSend     = Endpoint{Name: "payment_send", Path: "/api/payment/send/user", Method: http.MethodPost, Flow: FlowToken}
	EndpointPaymentStatus   = Endpoint{Name: "payment_status", Path: "/api/payment/send/status", Method: http.MethodGet, Flow: FlowToken, ReadOnly: true}
	EndpointNoRegSend       = Endpoint{Name: "noreg_send", Path: "/api/payment/noreg/send", Method: http.MethodGet, Flow: FlowNoReg, Redirect: true}
	EndpointNoRegStatus     = Endpoint{Name: "noreg_status", Path: "/api/payment/noreg/send/status", Method: http.MethodGet, Flow: FlowNoReg, ReadOnly: true}
	EndpointRefund          = Endpoint{Name: "refund", Path: "/api/payment/refund", Method: http.MethodPost, Flow: FlowToken}
)

func Endpoints() []Endpoint {
	return []Endpoint{
		EndpointStart,
		EndpointCodeGet,
		EndpointTokenGet,
		EndpointTokenInvalidate,
		EndpointUserInfo,
		EndpointPaymentInit,
		EndpointPaymentCheck,
		EndpointPaymentSend,
		EndpointPaymentStatus,
		EndpointNoRegSend,
		EndpointNoRegStatus,
		EndpointRefund,
	}
}

var endpointPathPattern = regexp.MustCompile(`^/[a-z0-9/_-]+$`)

func (e Endpoint) Validate() error {
	if !endpointPathPattern.MatchString(e.Path) {
		return &InvalidInputError{Field: "endpoint", Reason: "path " + e.Path + " is not allowed"}
	}
	if e.Method != http.MethodGet && e.Method != http.MethodPost {
		return &InvalidInputError{Field: "endpoint", Reason: "method " + e.Method + " is not allowed"}
	}
	if e.Flow != FlowToken && e.Flow != FlowNoReg {
		return &InvalidInputError{Field: "endpoint", Reason: "flow is required"}
	}
	return nil
}

// SignatureParam returns the parameter that carries the digest.
func (e Endpoint) SignatureParam() string {
	if e.Flow == FlowNoReg {
		return ParamAppCheck
	}
	return ParamChecksum
}
