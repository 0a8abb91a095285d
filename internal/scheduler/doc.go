// Package scheduler runs one action per day at or after a configured time of day.
//
// # Overview
//
// New submits a polling loop to a Submitter (the runtime supervisor). Every
// tick the loop reads the clock, prunes stale completion records, and decides
// whether to run the action. A successful run is confirmed by writing a
// completion record; the record is what makes the run idempotent across ticks
// and across process restarts when the Store is persistent.
//
// # Tick
//
//  1. Read the time of day. A clock error terminates the loop.
//  2. Delete every record whose time is later than now. Such a record was left
//     by an earlier day and must not mask today's run.
//  3. If now is strictly after the target and no remaining record is earlier
//     than now, run the action and write a record carrying the target time.
//
// An action failure writes nothing, is reported through the async error log,
// and the next tick tries again. Store failures terminate the loop.
//
// # Stopping
//
// The loop observes cancellation only while waiting between ticks. Stop
// cancels the loop once it has registered its cancel handle, retrying for a
// bounded number of attempts; Done is closed when the loop has exited.
//
// # Known limitation
//
// A wall clock that moves backwards past a record makes the record look stale,
// so it is pruned and the action can run again the same day.
package scheduler
