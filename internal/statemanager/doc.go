/*
Package statemanager implements the State Manager: the single
authoritative current_state variable and the policy that turns a state
transition into session creation, status-model mutation, and module
lifecycle side effects.

# Side effects per target state

  - CHAT ensures a General Session exists, then creates a Chatting
    Session under it using the identity resolved from the Working
    Context.
  - WORK ensures a General Session, then creates a Workflow Session with
    task_definition.command set to the context text. A workflow_type of
    "system_report" creates a SYSTEM_NOTIFICATION workflow session and
    synthesizes INPUT_LAYER_COMPLETE to skip the input layer entirely.
  - IDLE clears the current-session reference; no session is created.
  - MISCHIEF, gated by a config flag, suppresses helpfulness on the
    shared Status model and clears the current session reference.
  - SLEEP clears the current session, runs the configured module-unload
    hook, and persists a sleep-context marker consulted at startup.

ExitSpecialState restores suppressed status values, runs the module
reload hook and removes the sleep marker if waking from SLEEP, and
transitions back to IDLE.

# Event wiring

The Manager subscribes to SESSION_ENDED and forwards CS/WS completions
of its current session to the State Queue; General Session endings are
excluded. It also subscribes to STATUS_UPDATED and runs a debounced
check for SLEEP/MISCHIEF entry conditions based on the Status model's
boredom and mood axes.
*/
package statemanager
