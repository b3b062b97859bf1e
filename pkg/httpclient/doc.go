// Package httpclient is the request pipeline between admin API callers and
// the backend.
//
// A Pipeline wraps one logical request:
//   - attaches the bearer token and a per-request X-Correlation-ID
//   - bounds each physical attempt with AttemptTimeout
//   - classifies every failure through apierror.Classify
//   - on an unauthorized response, waits for the shared token refresh and
//     replays the request once with the new token
//   - retries transient failures (network, timeout, rate limit, 5xx) with
//     exponential backoff and no jitter, honouring Retry-After
//   - delivers each terminal failure to the notify.Sink exactly once
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.BaseURL = "https://admin.example.com"
//	p, err := httpclient.New(cfg,
//	    httpclient.WithTokenSource(session),
//	    httpclient.WithRefresher(coordinator),
//	    httpclient.WithSink(sink),
//	)
//	if err != nil {
//	    return err
//	}
//	var out workerList
//	err = p.DoJSON(ctx, &httpclient.Request{Method: http.MethodGet, Path: "/api/workers/"}, &out)
//
// # Retry Behavior
//
// With the default Policy a request failing with service_unavailable is
// attempted four times, waiting 1s, 2s and 4s between attempts. Retries
// are strictly sequential. Whether a failure is retryable comes only from
// its code; see apierror.IsRetryable.
//
// # Observability
//
// Each physical attempt is logged at debug level with a sanitized URL.
// Each logical request produces one OpenTelemetry span with retry and
// token_refresh events, and Prometheus counters track attempts, retries
// and replays.
package httpclient
