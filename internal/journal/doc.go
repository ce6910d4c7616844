package journal

// Package journal persists execution history for pacer limiters: one
// record per executed task, plus window-reset markers for burst limiters.
//
// Queued work itself is never persisted; only what already ran.
