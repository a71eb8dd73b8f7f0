/*
Package segmenter implements the Intent Segmenter + Workflow Validator.

# Pipeline

Segment runs raw text through three stages:

 1. Tag. A modules.NLP tagger (KeywordTagger is the in-repo stand-in;
    a real model-backed tagger satisfies the same interface) emits a
    per-token BIO label.
 2. Post-process. Consecutive same-label tokens collapse into raw
    segments; segments under three characters are reclassified as CALL
    (known greetings) or UNKNOWN; adjacent segments sharing an intent, or
    separated only by an UNKNOWN run, are merged unless a hard-boundary
    punctuation mark (., !, ?, ;) sits between them. A merge's dominant
    intent is the most frequent one in the group, ties broken by first
    occurrence.
 3. Validate. Every WORK segment is scored against the workflow
    catalogue by comparing its text to each workflow's readable name and
    description (direct word overlap plus a small synonym table,
    weighted by coverage). A similarity at or above 0.45, or a strong
    keyword hit, boosts confidence 15% and corrects work_mode/intent to
    the matched workflow's declared mode. A similarity below 0.15 cuts
    confidence 30%; if that drop takes confidence under 0.8 the segment
    is demoted to CHAT with a degradation marker. Anything in between is
    left alone, with a best-guess potential_workflow note.

The segmenter has no dependency on the reasoning module: it runs
entirely in the input layer, and its output both feeds the State Queue
and rides along as cycle data for the processing layer.
*/
package segmenter
