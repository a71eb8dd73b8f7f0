/*
Package sysloop implements the System Loop: the outermost driver that
ticks the State Queue and the Module Coordinator forever until stopped.

Each tick:

 1. Calls Queue.CheckAndAdvanceState, then takes the queue's current
    item. Queue.AddState promotes on its own when the queue is idle, so
    that item may have been promoted before the tick. If there is no
    current item, or it is the one an earlier tick already ran, the tick
    is a no-op.
 2. Enters the promoted item's state on the State Manager, creating or
    reusing the CS/WS the item needs.
 3. For a CHAT or WORK item, drives one Coordinator.RunCycle with the
    item's content standing in for a fresh capture (CycleInput.
    SkipInputLayer). Because RunCycle is synchronous and its own output
    layer is the last thing it does before returning, the next tick
    never starts until the prior cycle's OUTPUT_LAYER_COMPLETE has
    already been published — no separate wait step is needed. Other
    promoted states (MISCHIEF, SLEEP, IDLE, ERROR) are side-effect-only
    transitions the State Manager already handled in step 2; nothing
    through the Coordinator applies to them.
 4. After a Coordinator cycle, advances the working context's cycle
    index and publishes CYCLE_COMPLETED carrying the new index.
 5. Sleeps for idleSleep before the next tick.

Stop cancels the loop's context and blocks until the in-flight tick (if
any) returns, so a stopped Loop never leaves a cycle half-run.
*/
package sysloop
