/*
Package modules defines the capability-module boundary and the registry
that tracks which named modules are currently loaded.

# Interfaces

STT, NLP, LLM, Mem, TTS, and Sys are the narrow interfaces the core
consumes; each capability module (a real model-backed adapter, or a
smaller in-repo stand-in) satisfies exactly one. The Module embedding
gives every capability module a Name and a Close, used by the registry's
unload path.

# Registry

Registry is keyed by the module names spec.md §6 names (stt, nlp, llm,
mem, tts, sys, ui, ani, mov). RegisterModule remembers a Factory
alongside the instance so Unload/Reload — the mechanism the State
Manager's SLEEP/WAKE side effects drive — can tear down and rebuild a
module without the caller re-supplying construction arguments.
*/
package modules
