package llm

import "errors"

// ErrCircuitBreakerOpen is returned by CircuitBreaker.Call when the
// breaker is open (or half-open and already at its test-call quota).
var ErrCircuitBreakerOpen = errors.New("llm circuit breaker is open")
