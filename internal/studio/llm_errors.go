package studio

import (
	"context"
	"errors"
	"net"

	"gamesmith/studio/internal/errinfo"
	"gamesmith/studio/internal/llm"
)

func mapLLMError(phase string, err error) *errinfo.ErrorInfo {
	var info *errinfo.ErrorInfo
	switch {
	case errors.Is(err, llm.ErrUnauthorized):
		info = errinfo.ProviderAuthFailed(phase)
	case errors.Is(err, llm.ErrEgressBlocked):
		info = errinfo.EgressBlocked(phase, "provider endpoint not allowed")
	case errors.Is(err, llm.ErrRateLimited):
		info = errinfo.RateLimited(phase, err.Error())
	case errors.Is(err, llm.ErrUnavailable):
		info = errinfo.ProviderUnavailable(phase, err.Error())
	case errors.Is(err, llm.ErrInvalidRequest):
		info = errinfo.ValidationFailed(phase, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		info = errinfo.NetworkUnavailable(phase, err.Error())
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			info = errinfo.NetworkUnavailable(phase, err.Error())
		} else {
			info = errinfo.ProviderUnavailable(phase, err.Error())
		}
	}
	info.ProviderID = ProviderGoogle
	return info
}
