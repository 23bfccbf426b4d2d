package response

import "net/http"

// New generic response spec
type APIResponseCode int

const (
	APIResponseCodeOK             APIResponseCode = 0
	APIResponseCodeBadRequest     APIResponseCode = 40000
	APIResponseCodeUnauthorized   APIResponseCode = 40100
	APIResponseCodeForbidden      APIResponseCode = 40300
	APIResponseCodeNotFound       APIResponseCode = 40400
	APIResponseCodeConflict       APIResponseCode = 40900
	APIResponseCodeError          APIResponseCode = 50000
	APIResponseCodeGatewayTimeout APIResponseCode = 50400
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:             "ok",
	APIResponseCodeBadRequest:     "bad request",
	APIResponseCodeUnauthorized:   "unauthorized",
	APIResponseCodeForbidden:      "forbidden",
	APIResponseCodeNotFound:       "not found",
	APIResponseCodeConflict:       "conflict",
	APIResponseCodeError:          "unexpected error",
	APIResponseCodeGatewayTimeout: "gateway timeout",
}

var codeToStatus = map[APIResponseCode]int{
	APIResponseCodeOK:             http.StatusOK,
	APIResponseCodeBadRequest:     http.StatusBadRequest,
	APIResponseCodeUnauthorized:   http.StatusUnauthorized,
	APIResponseCodeForbidden:      http.StatusForbidden,
	APIResponseCodeNotFound:       http.StatusNotFound,
	APIResponseCodeConflict:       http.StatusConflict,
	APIResponseCodeError:          http.StatusInternalServerError,
	APIResponseCodeGatewayTimeout: http.StatusGatewayTimeout,
}

// HTTPStatus maps an envelope code to the HTTP status it is served with.
func (c APIResponseCode) HTTPStatus() int {
	if s, ok := codeToStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT / ErrorMsg helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with the default message for code.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// ErrorMsg returns an error response carrying a human-readable message.
func ErrorMsg(code APIResponseCode, msg string) *APIResponse[any] {
	if msg == "" {
		msg = codeToMsg[code]
	}
	return &APIResponse[any]{Code: code, Message: msg}
}
