package main

// SQL constants aligned with store/ifdsdb's schema (vulnerabilities,
// trace_steps, incomplete_methods).

const queryVulnerabilities = `
SELECT id, rule, message, sink_method, sink_file, sink_line, sink_text
FROM vulnerabilities
WHERE (? = '' OR rule = ?)
ORDER BY id
LIMIT ?
`

const queryVulnerabilityByID = `
SELECT id, rule, message, sink_method, sink_file, sink_line, sink_text
FROM vulnerabilities
WHERE id = ?
`

const queryTraceSteps = `
SELECT trace_index, step_index, method, file, line, text
FROM trace_steps
WHERE vulnerability_id = ?
ORDER BY trace_index, step_index
`

const queryIncompleteMethods = `
SELECT method, reason FROM incomplete_methods ORDER BY method LIMIT ?
`

const queryStatsTotal = `SELECT COUNT(*) FROM vulnerabilities`

const queryStatsByRule = `
SELECT rule, COUNT(*) FROM vulnerabilities GROUP BY rule ORDER BY COUNT(*) DESC
`

const queryStatsIncompleteCount = `SELECT COUNT(*) FROM incomplete_methods`

const defaultListLimit = 200
