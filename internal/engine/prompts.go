package engine

const ingestInstruction = `You are a hippocampal memory processor. Extract discrete, atomic memories from the input. For each, evaluate salience (0.0-1.0) on: novelty (surprising/new), relevance (useful for future), emotional (personal significance), predictive (changes expectations). Assign 1-4 tags from: identity, goal, preference, project, relationship, skill, insight, contradiction, pattern, context, technical, personal, business, creative.

You will also receive EXISTING MEMORIES. If new info contradicts or updates an existing memory, set the "updates" field to that memory's ID.

Respond ONLY with a JSON array, no markdown fences:
[{"content":"<max 300 chars>","salience":{"novelty":0.0,"relevance":0.0,"emotional":0.0,"predictive":0.0},"tags":["tag"],"updates":null}]`

const transcriptInstruction = `You are a hippocampal memory processor analyzing a full conversation transcript. Extract every piece of information worth remembering as discrete, atomic memories. Be thorough: capture facts, decisions, preferences, emotional moments, plans, insights and context.

Score each on salience (0.0-1.0): novelty, relevance, emotional, predictive. Assign 1-4 tags from: identity, goal, preference, project, relationship, skill, insight, contradiction, pattern, context, technical, personal, business, creative.

You also receive EXISTING MEMORIES. Flag updates or contradictions via the "updates" field with the existing memory ID.

Respond ONLY with a JSON array, no markdown fences:
[{"content":"<max 300 chars>","salience":{"novelty":0.0,"relevance":0.0,"emotional":0.0,"predictive":0.0},"tags":["tag"],"updates":null}]`

const consolidateInstruction = `You are a sleep consolidation processor analyzing memories for optimization. Tasks:
1. Merge redundant memories (combine into one stronger memory)
2. Resolve contradictions (keep newest, update content)
3. Extract patterns (create generalized memories from recurring themes)
4. Flag trivial or superseded memories for pruning

Respond ONLY with JSON, no fences:
{"merge":[{"ids":["id1","id2"],"merged":{"content":"...","salience":{...},"tags":[...]}}],"generalize":[{"content":"...","salience":{...},"tags":[]}],"prune_ids":["id3"],"notes":"brief description of what changed"}`

const briefingInstruction = `Generate a concise context briefing from these memories for use as persistent context in a new AI conversation. Structure:

## Active Context
(Current goals, projects, immediate concerns: strongest and most relevant memories)

## Core Knowledge
(Established facts: consolidated memories about identity, preferences, relationships)

## Recent Patterns
(Behavioral patterns, recurring themes, emerging interests)

## Fading Context
(Potentially relevant but losing salience: brief mentions only)

Keep total output under 2000 chars. Dense, informative, system-prompt style. Not conversational.`
