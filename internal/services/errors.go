package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrServiceResponse    = errors.New("conversion service error")
	ErrUnknownResponse    = errors.New("unknown conversion response")
	ErrTransfer           = errors.New("transfer failure")
	ErrRemediation        = errors.New("remediation failed")
	ErrMissingCredentials = errors.New("missing delivery credentials")
	ErrDelivery           = errors.New("delivery failure")
	ErrConfiguration      = errors.New("configuration error")
	ErrTimeout            = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransfer
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Reason maps an error onto the label operators see in batch reports.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrServiceResponse):
		return "ServiceError"
	case errors.Is(err, ErrUnknownResponse):
		return "UnknownResponse"
	case errors.Is(err, ErrRemediation):
		return "RemediationFailed"
	case errors.Is(err, ErrMissingCredentials):
		return "MissingCredentials"
	case errors.Is(err, ErrDelivery):
		return "DeliveryFailure"
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	default:
		return "TransferFailure"
	}
}

// Describe renders "<Reason>: <error>" for operator-facing reports.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return Reason(err) + ": " + err.Error()
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
