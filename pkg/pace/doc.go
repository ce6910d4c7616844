// Package pace implements a single-queue task pacer.
//
// Callers enqueue deferred callables against a rate budget such as
// "60 per minute"; the limiter executes them no faster than that rate.
// Priority pushes jump ahead of already-queued normal tasks while keeping
// FIFO order within each class. The optional burst allowance lets a
// configured fraction of each quota window run back-to-back before
// throttling begins.
//
// The limiter only decides WHEN a task runs; what the task does is the
// task's own concern.
package pace
