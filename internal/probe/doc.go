// Package probe decides whether a host is reachable from the internet.
//
// Two independent services are asked concurrently and their answers are
// OR-ed: a geo-ping lookup (one request, per-region packet loss) and a
// multi-node ping job (submit, then poll until every node reports). The
// combined check is retried a bounded number of times so a single network
// hiccup does not read as an outage.
package probe
