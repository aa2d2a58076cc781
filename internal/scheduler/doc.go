// Package scheduler triggers the recurring jobs (availability tick, grid
// refresh, tomorrow watch) on top of robfig/cron.
//
// Overlapping runs of the same job are skipped, panics are recovered, and
// interval jobs may start with a random spread so restarts do not hit the
// upstream services in lockstep.
package scheduler
