/*
WAL defines the record header of the write-ahead log that internal/recorder
frames and appends. The reactor appends one EventFill record for each fill
it records (internal/core.recordFill), after the engine has applied that
fill; net positions are recovered by replaying those records against the
last snapshot (internal/state).

# Module
  - writer: queued append, segment rotation by size/duration
  - reader: sequential record scan with checksum verification
  - playback: timestamp-paced or as-fast-as-possible replay

# Source
  - fills the reactor records from get_order status and fill notifications
  - synthetic ticker ticks from cmd/mdg
  - injected records from cmd/tools/chaos

# Produce
  - none

# Sharded
  - by market, one WAL directory per reactor instance
*/
package wal
