package toolregistry

import "errors"

// ErrTransient marks a provider failure that should be retried with
// backoff: network error, rate limit, provider 5xx. Providers under
// provider/websearch and provider/webfetch wrap their failures with this
// sentinel so Dispatch can classify them as tools.KindTransientExternal.
var ErrTransient = errors.New("toolregistry: transient provider error")

// ErrPermanent marks a non-retryable provider failure: malformed response,
// 4xx other than rate-limiting.
var ErrPermanent = errors.New("toolregistry: permanent provider error")

// ErrRateLimited marks a provider rate-limit rejection specifically, so
// callers can distinguish it from a generic transient failure if needed.
var ErrRateLimited = errors.New("toolregistry: provider rate limited")
