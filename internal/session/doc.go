/*
Package session implements the Session Manager: the full lifecycle of the
three session tiers — General (GS), Chatting (CS), and Workflow (WS) — plus
the append-only session record store and the timeout sweeper.

# Lifecycle

At most one GS is active at a time. A CS is created under an active GS and
at most one CS may be active per GS. Any number of WS may be active
concurrently under a GS. Ending a GS cascades: its active CS and every
active WS are ended first with reason "parent_ended".

# Record Store

RecordStore keeps an append-only history of every session's trigger,
status transitions, and completion summary, indexed by record id, by
session id, and by session kind. It persists through internal/storage
under memory/session_records.json.

# Timeout Sweeper

Manager.StartTimeoutSweeper runs a ticker that ends any session inactive
longer than the configured max session age, with reason "timeout".
*/
package session
