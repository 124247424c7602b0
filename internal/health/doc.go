// Package health tracks repository availability.
//
// A repository is healthy when its main checkout path exists on disk.
// The Cache keeps one last-known Check per active repository, rebuilt by a
// full-table sweep and lazily filled for repositories added between sweeps.
// Consumers never see an error for a missing path; absence is an ordinary
// result surfaced as Check{Healthy: false, Reason: path_missing}.
package health
