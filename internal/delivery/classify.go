package delivery

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/shohag/hookrelay/internal/models"
)

// Transport error codes carried in DeliveryResult.Error.Code.
const (
	CodeTimeout           = "timeout"
	CodeDNS               = "dns_error"
	CodeConnectionRefused = "connection_refused"
	CodeTLS               = "tls_error"
	CodeCanceled          = "canceled"
	CodeNetwork           = "network_error"
	CodeInvalidRequest    = "invalid_request"
	CodeRateLimited       = "rate_limited"
)

// classify turns a transport failure into a stable code. timedOut is true
// when the attempt's own deadline fired.
func classify(err error, timedOut bool, timeout time.Duration) *models.DeliveryError {
	var reqErr *requestError
	var dnsErr *net.DNSError
	var netErr net.Error
	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var authErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError

	switch {
	case errors.As(err, &reqErr):
		return &models.DeliveryError{Message: err.Error(), Code: CodeInvalidRequest}
	case timedOut || errors.Is(err, context.DeadlineExceeded):
		return &models.DeliveryError{Message: fmt.Sprintf("request timed out after %s", timeout), Code: CodeTimeout}
	case errors.Is(err, context.Canceled):
		return &models.DeliveryError{Message: "request canceled", Code: CodeCanceled}
	case errors.As(err, &dnsErr):
		return &models.DeliveryError{Message: dnsErr.Error(), Code: CodeDNS}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &models.DeliveryError{Message: err.Error(), Code: CodeConnectionRefused}
	case errors.As(err, &recordErr), errors.As(err, &certErr), errors.As(err, &authErr),
		errors.As(err, &hostErr), errors.As(err, &invalidErr):
		return &models.DeliveryError{Message: err.Error(), Code: CodeTLS}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &models.DeliveryError{Message: fmt.Sprintf("request timed out after %s", timeout), Code: CodeTimeout}
	default:
		return &models.DeliveryError{Message: err.Error(), Code: CodeNetwork}
	}
}

// Throttled reports whether r was stopped by the tenant's own rate limit
// before any request left the process.
func Throttled(r models.DeliveryResult) bool {
	return r.Error != nil && r.Error.Code == CodeRateLimited
}
