// Package signal records monitoring signals: conditions an operator should
// see even though the request that produced them succeeded. A past_due
// subscription kept premium, a webhook with a bad signature and a rejected
// transition are all signals.
//
// A Recorder stamps each signal and writes it to a structured log line, to an
// optional Storage and, for alerting kinds, to an optional Notifier. Storage
// and notifier failures are logged and never reach the caller's control flow.
package signal
