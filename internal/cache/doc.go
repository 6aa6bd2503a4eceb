/*
Package cache provides a Redis-backed key/value cache manager: a
connection-pooled client with health checking, JSON convenience
helpers, and graceful shutdown.

credentials.Store uses it as the second tier of secret resolution,
sitting between a remote secret store and the process environment, but
the type is general purpose and carries no secret-specific behaviour.

# Core types

  - Manager: holds the Redis client and pool configuration; exposes
    Get/Set/Delete/Exists/Expire plus GetJSON/SetJSON.
  - Config: address, password, pool sizing, default TTL, health-check
    interval.

# Notes

A background goroutine pings Redis on HealthCheckInterval and logs
failures; it never turns a transient Redis outage into a fatal error,
since every cache miss is treated as regular cache-miss behaviour by
the caller.
*/
package cache
