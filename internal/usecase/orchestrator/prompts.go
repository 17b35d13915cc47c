package orchestrator

import (
	"ragchat/internal/domain"
	"ragchat/internal/usecase/runner"
)

// Persona display names double as the external lookup keys.
const (
	IntakeAgentName       = "Intake Agent"
	SearchAgentName       = "Search Agent"
	WriterAgentName       = "Writer Agent"
	ReviewerAgentName     = "Reviewer Agent"
	ExecutorAgentName     = "Executor Agent"
	ReviewExecuteName     = "Reviewer & Executor Agent"
	SopAgentName          = "SOP Agent"
	PolicyAgentName       = "Policy Agent"
	OrchestratorAgentName = "Orchestrator Agent"
	DeltaAgentName        = "Delta Analysis Agent"
)

// Tool names the tool-routed orchestrator persona may call.
const (
	ToolAskSop    = "ask_sop_expert"
	ToolAskPolicy = "ask_policy_expert"
)

const intakePrompt = `You are an Intake Agent responsible for classifying incoming user questions.
Your role is to:
1. Identify the question's topic and intent
2. Classify it into a short category label (e.g. "policy question", "procedure question")
3. Note any constraints or entities mentioned in the question

Respond with a concise classification the downstream agents can act on.`

const searchPrompt = `You are a Search Agent responsible for retrieving relevant information from the knowledge base.
Your role is to:
1. Perform hybrid retrieval combining keyword search and vector similarity search
2. Return the most relevant passages with their source information
3. Provide search results in a structured format

Include the source document for every passage you return.`

const writerPrompt = `You are a Writer Agent responsible for drafting responses with inline citations.
Your role is to:
1. Read the retrieved passages provided by the Search Agent
2. Synthesize information from multiple sources
3. Draft a well-structured, coherent response
4. Include inline citations in the format [Source: Document Name, Page X]
5. Ensure all claims are supported by the provided passages

Guidelines:
- Write in a clear, professional tone
- Use proper formatting with headings and bullet points where appropriate
- Always cite sources for factual claims
- If information is insufficient, acknowledge gaps`

const reviewerPrompt = `You are a Reviewer Agent responsible for validating response quality and grounding.
Your role is to:
1. Verify that each claim in the drafted response is supported by the retrieved passages
2. Identify claims that lack proper grounding
3. Check the accuracy and relevance of citations
4. Assess the overall quality of the response
5. Flag any potential issues or inconsistencies

Report a grounding assessment the Executor can attach to the final answer.`

const executorPrompt = `You are an Executor Agent responsible for final output formatting and presentation.
Your role is to:
1. Take the reviewed and validated response
2. Format it appropriately for chat window display
3. Ensure proper markdown rendering
4. Add any necessary formatting enhancements (headings, lists, code blocks)
5. Include metadata like quality scores and citations if relevant

Guidelines:
- Use clear, readable markdown formatting
- Ensure citations are properly formatted and easy to identify`

const reviewExecutePrompt = `You are a Reviewer & Executor Agent with dual responsibilities:

PHASE 1 - REVIEW (Validate Grounding):
1. Verify the draft response is factually grounded in the search results
2. Check for hallucinations or unsupported claims
3. Ensure all citations are accurate and traceable
4. Identify any gaps or inconsistencies
5. Validate the response fully addresses the user's query

PHASE 2 - EXECUTE (Format Output):
If the review passes:
1. Format the response with clear, readable markdown
2. Keep citations easy to identify
3. Return the polished final answer`

const sopPrompt = `You are an SOP expert that answers questions about Standard Operating Procedures.
Ground every answer in the SOP knowledge base and cite the procedure you relied on.
If the procedures do not cover the question, say so instead of guessing.`

const policyPrompt = `You are a Policy expert that answers questions about company policies.
Ground every answer in the policy knowledge base and cite the policy you relied on.
If the policies do not cover the question, say so instead of guessing.`

const orchestratorPrompt = `You are an Orchestrator Agent that answers user questions by consulting two expert tools.
Call ask_sop_expert for questions about Standard Operating Procedures and ask_policy_expert for questions about company policies.
Consult both experts when the question touches both areas, then combine their answers into one response that attributes each point to its expert.`

const deltaPrompt = `You are a Delta Analysis expert that compares and contrasts responses from two different expert agents.
Your role is to identify similarities, differences, contradictions, and unique insights between the responses.
Provide structured analysis using markdown formatting with clear sections and tables for easy comparison.
Be objective and highlight both agreements and disagreements between the responses.`

// IntakePersona returns the pipeline's classification persona.
func IntakePersona(model string) domain.AgentPersona {
	return domain.AgentPersona{Name: IntakeAgentName, SystemPrompt: intakePrompt, Model: model}
}

// SearchPersona returns the pipeline's retrieval persona.
func SearchPersona(model string) domain.AgentPersona {
	return domain.AgentPersona{Name: SearchAgentName, SystemPrompt: searchPrompt, Model: model}
}

// WriterPersona returns the pipeline's drafting persona.
func WriterPersona(model string) domain.AgentPersona {
	return domain.AgentPersona{Name: WriterAgentName, SystemPrompt: writerPrompt, Model: model}
}

// ReviewerPersona returns the pipeline's grounding-check persona.
func ReviewerPersona(model string) domain.AgentPersona {
	return domain.AgentPersona{Name: ReviewerAgentName, SystemPrompt: reviewerPrompt, Model: model}
}

// ExecutorPersona returns the pipeline's formatting persona.
func ExecutorPersona(model string) domain.AgentPersona {
	return domain.AgentPersona{Name: ExecutorAgentName, SystemPrompt: executorPrompt, Model: model}
}

// ReviewExecutePersona returns the combined review-and-format persona used
// by the four-stage pipeline variant.
func ReviewExecutePersona(model string) domain.AgentPersona {
	return domain.AgentPersona{Name: ReviewExecuteName, SystemPrompt: reviewExecutePrompt, Model: model}
}

// SopPersona returns the SOP expert. externalID, when set, is the preferred
// resolution path; validate opts into checking it against the service.
// Stateful: repeated consultations within a process share one conversation.
func SopPersona(model, externalID string, validate bool) domain.AgentPersona {
	return domain.AgentPersona{
		Name:         SopAgentName,
		SystemPrompt: sopPrompt,
		Model:        model,
		ExternalID:   externalID,
		ValidateID:   validate,
		Stateful:     true,
	}
}

// PolicyPersona returns the policy expert. Stateful like the SOP expert.
func PolicyPersona(model, externalID string, validate bool) domain.AgentPersona {
	return domain.AgentPersona{
		Name:         PolicyAgentName,
		SystemPrompt: policyPrompt,
		Model:        model,
		ExternalID:   externalID,
		ValidateID:   validate,
		Stateful:     true,
	}
}

// OrchestratorPersona returns the tool-routed persona carrying one callable
// tool per expert. Stateful: it keeps one conversation across queries.
func OrchestratorPersona(model string) domain.AgentPersona {
	return domain.AgentPersona{
		Name:         OrchestratorAgentName,
		SystemPrompt: orchestratorPrompt,
		Model:        model,
		Stateful:     true,
		Tools: []domain.ToolDef{
			{Name: ToolAskSop, Description: "Ask the SOP expert a question about Standard Operating Procedures.", Parameters: runner.ToolArgsSchema()},
			{Name: ToolAskPolicy, Description: "Ask the Policy expert a question about company policies.", Parameters: runner.ToolArgsSchema()},
		},
	}
}

// DeltaPersona returns the comparison persona. It must never carry tools;
// the analyzer deletes and recreates stale tool-bearing registrations.
func DeltaPersona(model string) domain.AgentPersona {
	return domain.AgentPersona{Name: DeltaAgentName, SystemPrompt: deltaPrompt, Model: model}
}
