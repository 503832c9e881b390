package error

import "net/http"

// RestError is implemented by every error the REST layer knows how to map
// to an HTTP status and an error_kind string.
type RestError interface {
	error
	ErrCode() string
	StatusCode() int
}

type ValidationError string

func (err ValidationError) Error() string   { return string(err) }
func (err ValidationError) ErrCode() string { return "BadInput" }
func (err ValidationError) StatusCode() int { return http.StatusBadRequest }

type BadConfigError string

func (err BadConfigError) Error() string   { return string(err) }
func (err BadConfigError) ErrCode() string { return "BadConfig" }
func (err BadConfigError) StatusCode() int { return http.StatusBadRequest }

type BadCronError string

func (err BadCronError) Error() string   { return string(err) }
func (err BadCronError) ErrCode() string { return "BadCron" }
func (err BadCronError) StatusCode() int { return http.StatusBadRequest }

type NotFoundError string

func (err NotFoundError) Error() string   { return string(err) }
func (err NotFoundError) ErrCode() string { return "NotFound" }
func (err NotFoundError) StatusCode() int { return http.StatusNotFound }

type DuplicateError string

func (err DuplicateError) Error() string   { return string(err) }
func (err DuplicateError) ErrCode() string { return "Duplicate" }
func (err DuplicateError) StatusCode() int { return http.StatusConflict }

type UnknownTypeError string

func (err UnknownTypeError) Error() string   { return string(err) }
func (err UnknownTypeError) ErrCode() string { return "UnknownType" }
func (err UnknownTypeError) StatusCode() int { return http.StatusBadRequest }

type BadCredentialsError string

func (err BadCredentialsError) Error() string   { return string(err) }
func (err BadCredentialsError) ErrCode() string { return "BadCredentials" }
func (err BadCredentialsError) StatusCode() int { return http.StatusUnauthorized }

type GatewayError string

func (err GatewayError) Error() string   { return string(err) }
func (err GatewayError) ErrCode() string { return "GatewayError" }
func (err GatewayError) StatusCode() int { return http.StatusBadGateway }
