// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"text/template"
)

// Role lines open each prompt. Fakes in tests route on them.
const (
	roleOptimizer  = "You are a query optimization expert."
	roleResearcher = "You are a research assistant that summarizes and structures search results."
	roleExtractor  = "You are an expert at identifying factual claims in text."
	roleVerifier   = "You are a critical fact-checker analyzing research content."
	roleReporter   = "You are a critical fact-checker generating a comprehensive verification report."
	roleDrafter    = "You are a writer drafting content from verified research."
)

var optimizePromptTmpl = template.Must(template.New("optimize").Parse(roleOptimizer + ` Your task is to transform natural language queries into detailed, domain-specific optimized queries that can be processed by specialized systems.

Original query: {{.Query}}

Provide an optimized version of this query that:
1. Is more specific and detailed
2. Includes relevant domain terminology
3. Is structured for better processing by downstream systems
4. Maintains the original intent of the query

Respond with the optimized query only.
`))

var researchPromptTmpl = template.Must(template.New("research").Parse(roleResearcher + `

Given the following raw search results:

{{.Results}}

Provide a well-structured summary that:
1. Extracts the key information
2. Organizes it in a clear, logical manner
3. Removes any redundant or irrelevant information
4. Cites sources appropriately
5. Presents a comprehensive overview of the topic

Use only the material in the search results. Your summary should be detailed enough to provide valuable insights on the query: {{.Query}}
`))

var claimsPromptTmpl = template.Must(template.New("claims").Parse(roleExtractor + `
From the following research output, extract the {{.Min}}-{{.Max}} most significant factual claims that should be verified.

Research output:
{{.Research}}

For each claim, provide:
1. statement: the claim statement
2. importance: the importance of verifying this claim, one of "high", "medium", "low"

Format your response as a JSON object: {"claims": [{"statement": "...", "importance": "high"}]}
`))

var verifyPromptTmpl = template.Must(template.New("verify").Parse(roleVerifier + ` Evaluate the following claim:

CLAIM: {{.Claim}}

Based on your analysis and the provided verification data:
{{.Evidence}}

Provide a detailed assessment with:
1. Reliability score (0-10)
2. Confidence level (0-10)
3. Specific inaccuracies or misrepresentations (if any)
4. Missing context or nuance
5. Potential biases in the original claim

Format your response as a JSON object with the following structure:
{
    "reliability_score": <integer 0-10>,
    "confidence_level": <integer 0-10>,
    "inaccuracies": ["<issue>", ...],
    "missing_context": ["<context>", ...],
    "potential_biases": ["<bias>", ...],
    "corrected_claim": "<improved version of the claim>"
}
`))

var reportPromptTmpl = template.Must(template.New("report").Parse(roleReporter + `

Original research output:
{{.Research}}
{{if .NoClaims}}
No claims were available for verification. State explicitly that no claims were verified and do not give a reliability score.
{{else}}{{if .Summary.Verified}}
{{.Summary}}
{{else}}
None of the {{.Summary.Failed}} claim(s) could be verified. Say so and do not give a reliability score.
{{end}}
Detailed verification results for key claims:
{{.Results}}
{{end}}
References used in verification:
{{if .References}}{{.References}}{{else}}(none){{end}}

Provide a comprehensive fact-check report that:
1. Summarizes the overall reliability of the research{{if .Summary.Verified}} using the aggregate score above{{end}}
2. Highlights the most significant accuracy issues
3. Provides context for any misleading or incomplete information
4. Suggests improvements to make the research more accurate and balanced
5. Includes a "References" section at the end listing all sources used in verification

Cite specific references by number when discussing claims.
`))

var draftPromptTmpl = template.Must(template.New("draft").Parse(roleDrafter + `
Create a {{.Style}} about the query "{{.Query}}". Write about the research findings only, not about the process (fact checking, query optimization).

{{.Instruction}}

Research findings:
{{.Research}}

Fact-check report:
{{.FactCheck}}

{{if .References}}End the draft with a "References" section listing:
{{.References}}
{{end}}
The content should be informative, engaging, and suitable for the target audience.
`))

// strictJSONSuffix is appended when a structured response failed validation.
const strictJSONSuffix = `

IMPORTANT: your previous answer could not be parsed. Respond with ONLY a valid JSON document with exactly the fields described above. No commentary, no Markdown, no code fences.`

// strictTextSuffix is appended when a free-text response came back empty.
const strictTextSuffix = `

IMPORTANT: your previous answer was empty. Respond with the requested text now.`

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
