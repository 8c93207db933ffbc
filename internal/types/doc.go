/*
Package types defines small data structures shared between relaybench packages.

# Overview

The types package holds definitions that more than one package needs without
pulling in each other's dependencies:
  - TLSConfig: TLS and mTLS settings for wss:// relays

TLSConfig is filled by the config package (viper/mapstructure tags), dumped
by the config subcommand (yaml tags) and consumed by the executor package
when building the WebSocket dialer.
*/
package types
