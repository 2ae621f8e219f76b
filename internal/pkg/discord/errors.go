package discord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

var (
	ErrUnavailable = errors.New("discord unavailable")
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrUnavailable)
	ErrInvalidCode = errors.New("invalid oauth code")
)

func classifyRequestError(ctx context.Context, endpoint string, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("%w: %s timeout: %v", ErrUnavailable, endpoint, err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("%w: %s network error: %v", ErrUnavailable, endpoint, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s request error: %v", ErrUnavailable, endpoint, err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
