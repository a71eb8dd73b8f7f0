/*
Package statequeue implements the State Queue: the priority-ordered ring
of pending states that feeds the System Loop's per-tick advancement.

# Priority

Each state has a default priority (WORK=100, CHAT=50, MISCHIEF=30,
SLEEP=10, ERROR=5, IDLE=0). A work_mode of "direct" coerces the priority
up to at least 100; "background" clamps it down to at most 30. A
caller-supplied custom priority overrides both. Items sort by priority
descending; ties break by insertion order.

# Promotion

CheckAndAdvanceState promotes the highest-priority pending item to
current and publishes STATE_ADVANCED carrying the working context's
cycle index, so the Module Coordinator can skip the input layer on a
state that was pre-seeded with content (e.g. a segmented intent).
Promotion never happens automatically on completion — the System Loop
drives it once per tick.

# Interrupts

InterruptChatForWork bypasses the normal priority sort: it always inserts
at the head of the pending queue with a fixed priority of 200, ahead of
anything else waiting.

# Persistence

The queue is written to durable storage after every mutation (add,
promote, complete, interrupt), so a crash mid-cycle cannot lose
committed work.
*/
package statequeue
