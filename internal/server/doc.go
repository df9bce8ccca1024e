// Package server hosts the Fiber HTTP surface of the cache service: the
// /v1/objects/* routes that the surrounding tiered-storage layer consumes
// (put/get/head/delete), plus /-/ diagnostics paths for health and sweep
// statistics. Handlers translate Store errors into a small JSON error
// vocabulary and stream bodies in both directions so object size never
// dictates memory usage. Keep exports narrow and accept explicit
// dependencies.
package server
