package brief

import (
	"fmt"
	"strings"

	"github.com/fachebot/meeting-brief/internal/hubspot"
	"github.com/fachebot/meeting-brief/internal/search"
)

const (
	notProvided  = "(not provided)"
	noneProvided = "(none provided)"
	noHubSpot    = "(no HubSpot context)"
)

// ExecutiveSystemMessage 内部会议简报的系统指令
const ExecutiveSystemMessage = "You are CROmetrics' Executive Meeting Copilot. Produce a hard-hitting, 1-2 page brief. " +
	"Tone: concise, skeptical, candid. Identify risks early and propose concrete actions.\n" +
	"Output sections (Markdown):\n" +
	"1) TL;DR (5-7 bullets)\n" +
	"2) Meeting Objectives (numbered)\n" +
	"3) Account Snapshot (stage, health, blockers)\n" +
	"4) Attendee One-Pagers (role, incentives, prior interactions, likely objections, LinkedIn link)\n" +
	"5) What's New in Slack (themes; cite [ts])\n" +
	"6) Hypotheses & Win Themes\n" +
	"7) Smart Questions to Ask (5-10)\n" +
	"8) Risks & Counters\n" +
	"9) 14-Day Action Plan (owner, date)\n" +
	"If context is missing, state the gap and give the single best assumption. End with a validation checklist."

// DefaultRunPrompt 内部会议简报的默认用户提示词
const DefaultRunPrompt = "Produce an executive meeting brief using the sections in the developer message.\n" +
	"Use the ATTENDEES, ACCOUNT CONTEXT, and RECENT SLACK below.\n" +
	"Be candid about unknowns and end with a validation checklist."

// BDSystemMessage 外部 BD 会议情报报告的系统指令
const BDSystemMessage = `You are Cro Metrics' External Business Development Meeting Intelligence Agent.
Goal: produce a comprehensive, strategic intelligence report (about 1500-2000 words) that positions us to win external BD meetings.
Audience: Cro Metrics executives preparing for high-stakes external meetings.
Tone: analytical, strategic, confident. Focus on actionable intelligence.

ABOUT CRO METRICS:
Cro Metrics is "Your Agency for All Things Digital Growth", a conversion rate optimization and digital growth consultancy that designs strategic solutions to transform brands into growth engines. Clients see stronger customer engagement and positive ROI within the first year.

CORE SERVICES:
- Analytics: unified data insights for full-funnel visibility and action
- Conversion Rate Optimization: uncover the strongest growth opportunities while mitigating risk before it reaches the bottom line
- Creative Services: creative designed to captivate, convert, and drive growth results
- Customer Journey Analysis: turn fragmented customer data into actionable insights
- Design and Build: from high-converting landing pages to risk-free re-platforming
- Iris by Cro Metrics: a single platform to manage and maximize the impact of a growth program
- Lifecycle and Email: cross-channel loyalty and retention programs
- Performance Marketing: data-driven, multi-channel campaigns with clear attribution to maximize ROAS

INDUSTRY EXPERTISE:
Subscription, E-Commerce/Retail, SaaS and Lead Generation, Hospitality, FinTech, B2B Lead Gen, Nonprofit & Associations.

PROVEN RESULTS:
- $1B total client impact across the portfolio
- 97.4% retention rate with enterprise clients
- 10X average ROI per client
- 2X the industry average testing win rate
- "We Don't Guess, We Test"
- Google Partner and Meta Business Partner

CLIENT EXAMPLES:
Home Chef (revenue growth), Curology (data-driven creative), Bombas (testing velocity and ROI), Calendly (best practices and strategy), UNICEF USA (attention to detail with big-picture understanding).

OUTPUT (Markdown, in this order):
1) Executive Summary (5-7 bullets: why this meeting matters and the single biggest opportunity)
2) Company Snapshot (business model, scale, recent developments, digital maturity signals)
3) Attendee Intelligence (one block per attendee: role, likely priorities, relationship status from HubSpot, how to engage)
4) Opportunity Map (table: their challenge -> matching Cro Metrics service -> expected impact)
5) Relevant Proof Points (which client examples and results to cite, and why)
6) Strategic Questions to Ask (8-12)
7) Likely Objections & Responses
8) Recommended Meeting Flow & Next Steps

GUARDRAILS:
- Use only the research provided. When a fact is missing, say so and state your best assumption.
- Never invent names, numbers, or quotes. Cite the source URL for company facts when one is given.
- Always tie recommendations to specific Cro Metrics services.`

// DefaultReportPrompt BD 报告的默认用户提示词
const DefaultReportPrompt = `Create a strategic business development intelligence report using the research provided below.
Focus on identifying specific opportunities where Cro Metrics can drive measurable business impact through our digital growth services.

Map the target company's specific needs to Cro Metrics' current service offerings: Analytics, CRO, Creative Services, Customer Journey Analysis, Design & Build, Iris platform, Lifecycle & Email, Performance Marketing.

Position Cro Metrics as "Your Agency for All Things Digital Growth" with $1B client impact, 97.4% retention rate, and 10X average ROI. Reference relevant client success stories (Home Chef, Curology, Bombas, Calendly, UNICEF USA) when applicable.`

// UserMessage 用户提示词与上下文之间空一行
func UserMessage(prompt, context string) string {
	return prompt + "\n\n" + context
}

// AttendeeBlock 每个 CRM 联系人一行："- 名 姓 — 职位 (邮箱) — LinkedIn"
func AttendeeBlock(contacts []hubspot.Contact) string {
	if len(contacts) == 0 {
		return noneProvided
	}
	lines := make([]string, 0, len(contacts))
	for _, c := range contacts {
		line := fmt.Sprintf("- %s %s — %s (%s)",
			strings.TrimSpace(c.FirstName), strings.TrimSpace(c.LastName), c.JobTitle, c.Email)
		if c.LinkedInURL != "" {
			line += " — " + c.LinkedInURL
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// AccountBlock 每个联系人所属公司及生命周期阶段
func AccountBlock(contacts []hubspot.Contact) string {
	if len(contacts) == 0 {
		return noHubSpot
	}
	lines := make([]string, 0, len(contacts))
	for _, c := range contacts {
		company := c.Company
		if company == "" {
			company = "—"
		}
		stage := c.LifecycleStage
		if stage == "" {
			stage = "n/a"
		}
		lines = append(lines, fmt.Sprintf("• %s — lifecycle: %s  (contact: %s)", company, stage, c.Email))
	}
	return strings.Join(lines, "\n")
}

// ComposeRunContext 组装内部简报的上下文块
func ComposeRunContext(purpose string, contacts []hubspot.Contact, slackBlock string, lookbackDays int) string {
	if purpose = strings.TrimSpace(purpose); purpose == "" {
		purpose = notProvided
	}
	return fmt.Sprintf("MEETING PURPOSE:\n%s\n\nATTENDEES:\n%s\n\nACCOUNT CONTEXT (HubSpot):\n%s\n\nRECENT SLACK (last %d days):\n%s",
		purpose, AttendeeBlock(contacts), AccountBlock(contacts), lookbackDays, slackBlock)
}

func writeResults(sb *strings.Builder, results []search.Result, empty string) {
	if len(results) == 0 {
		sb.WriteString(empty + "\n\n")
		return
	}
	for _, r := range results {
		sb.WriteString("**" + r.Title + "**\n")
		if r.URL != "" {
			sb.WriteString("Source: " + r.URL + "\n")
		}
		if r.Snippet != "" {
			sb.WriteString(r.Snippet + "\n")
		}
		sb.WriteString("\n")
	}
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value == "" {
		return fallback
	}
	return value
}

// BuildResearchContext 将公司调研与参会人调研整理为 Markdown
func BuildResearchContext(company *search.CompanyResearch, attendees []ResearchedAttendee) string {
	if company == nil {
		company = &search.CompanyResearch{}
	}

	var sb strings.Builder
	sb.WriteString("## Company Overview Research\n")
	writeResults(&sb, company.Overview, "No company overview results found.")

	sb.WriteString("## Recent News & Developments\n")
	writeResults(&sb, company.News, "No recent news found.")

	sb.WriteString("## Meeting Attendee Profiles\n")
	if len(attendees) == 0 {
		sb.WriteString("No attendees provided.\n")
	}
	for _, a := range attendees {
		sb.WriteString("### " + orDefault(a.Name, "Unknown attendee") + "\n")
		sb.WriteString("**Title:** " + orDefault(a.Title, "Not provided") + "\n")
		sb.WriteString("**Email:** " + orDefault(a.Email, "Not provided") + "\n")
		sb.WriteString("**LinkedIn:** " + orDefault(a.LinkedInURL, "Not found") + "\n")
		if a.HubSpotContact != nil {
			sb.WriteString(fmt.Sprintf("**HubSpot Status:** Existing contact found (ID: %s)\n", orDefault(a.HubSpotContact.ID, "N/A")))
		} else {
			sb.WriteString("**HubSpot Status:** Not in HubSpot\n")
		}

		sb.WriteString("**Professional Background:**\n")
		background := 0
		if a.LinkedInSnippet != "" {
			sb.WriteString("- " + a.LinkedInSnippet + "\n")
			background++
		}
		for _, info := range a.BackgroundResearch.BackgroundInfo {
			if info.Snippet == "" {
				continue
			}
			sb.WriteString("- " + info.Title + ": " + info.Snippet + "\n")
			background++
		}
		if background == 0 {
			sb.WriteString("- No public background found.\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// attendeeSummary "姓名 (职位), ..."
func attendeeSummary(attendees []ResearchedAttendee) string {
	if len(attendees) == 0 {
		return noneProvided
	}
	parts := make([]string, 0, len(attendees))
	for _, a := range attendees {
		if a.Title != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", a.Name, a.Title))
		} else {
			parts = append(parts, a.Name)
		}
	}
	return strings.Join(parts, ", ")
}

// ComposeReportContext 组装 BD 报告的上下文块
func ComposeReportContext(companyName, industry, meetingContext string, attendees []ResearchedAttendee, researchContext string) string {
	return fmt.Sprintf("TARGET COMPANY: %s\nMEETING ATTENDEES: %s\nINDUSTRY: %s\nMEETING CONTEXT: %s\n\nRESEARCH INTELLIGENCE:\n%s",
		orDefault(companyName, notProvided),
		attendeeSummary(attendees),
		orDefault(industry, notProvided),
		orDefault(meetingContext, notProvided),
		researchContext)
}
