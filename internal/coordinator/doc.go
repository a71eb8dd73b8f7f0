/*
Package coordinator implements the Module Coordinator: the layered engine
between the System Loop and the capability modules.

Three layers run in strict order within one cycle:

 1. Input. On a normal cycle, captures audio via the STT module and
    segments the resulting text. On a cycle whose state was promoted by
    the State Queue (the caller signals this by setting
    CycleInput.SkipInputLayer), the layer is bypassed entirely: the
    promoted item's own text and segmenter output stand in for a fresh
    capture.
 2. Processing. Resolves the active identity, selects a tool-catalogue
    path from the active session kind, and calls the reasoning module
    with a dynamically chosen tool-choice mode. Free text goes to the
    memory store; a function call is dispatched to either workflow
    control or memory tools, with session_id auto-injected over
    whatever the model supplied.
 3. Output. Synthesizes speech, chunking long text, and publishes
    OUTPUT_LAYER_COMPLETE once every chunk has gone out.

A failing layer terminates the active session with reason "error" and
returns the error to the caller rather than panicking the cycle.
*/
package coordinator
