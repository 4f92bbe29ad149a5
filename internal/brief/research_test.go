package brief

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fachebot/meeting-brief/internal/hubspot"
	"github.com/fachebot/meeting-brief/internal/llm"
	"github.com/fachebot/meeting-brief/internal/model"
	"github.com/fachebot/meeting-brief/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResearchAttendees(t *testing.T) {
	s, deps := newTestService()
	deps.searcher.results[`"Jane Doe" Acme site:linkedin.com/in`] = []search.Result{
		{Title: "Jane Doe - VP Growth - Acme | LinkedIn", URL: "https://www.linkedin.com/in/janedoe", Snippet: "Growth leader"},
	}
	deps.searcher.results[`"Jane Doe" Acme VP Growth`] = []search.Result{
		{Title: "Jane on podcasts", URL: "https://pod.example/jane", Snippet: "Talks retention"},
	}
	deps.crm.byName["Sam Roe"] = &hubspot.Contact{ID: "77", FirstName: "Sam", LastName: "Roe"}

	result, err := s.ResearchAttendees(context.Background(), ResearchRequest{
		TargetCompany: "Acme",
		Attendees: []Attendee{
			{Name: "Jane Doe", Title: "VP Growth", Email: "jane@acme.com"},
			{Name: "Sam Roe", Company: "Acme Labs"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalResearched)
	assert.Equal(t, 1, result.LinkedInFound)
	assert.Equal(t, 1, result.HubSpotFound)

	jane := result.ResearchedAttendees[0]
	assert.Equal(t, "Acme", jane.Company)
	assert.Equal(t, "https://www.linkedin.com/in/janedoe", jane.LinkedInURL)
	assert.Equal(t, "Growth leader", jane.LinkedInSnippet)
	require.Len(t, jane.BackgroundResearch.BackgroundInfo, 1)
	assert.Nil(t, jane.HubSpotContact)

	sam := result.ResearchedAttendees[1]
	assert.Equal(t, "Acme Labs", sam.Company)
	require.NotNil(t, sam.HubSpotContact)
	assert.Equal(t, "77", sam.HubSpotContact.ID)
	assert.NotNil(t, sam.BackgroundResearch.BackgroundInfo)

	assert.Equal(t, []string{model.EventAttendeeResearch}, deps.usage.events)
	assert.Equal(t, map[string]any{"target_company": "Acme", "attendee_count": 2}, deps.usage.data[0])
}

func TestResearchAttendees_SkipHubSpot(t *testing.T) {
	s, deps := newTestService()
	deps.crm.byName["Sam Roe"] = &hubspot.Contact{ID: "77", FirstName: "Samuel", LastName: "Roe"}

	skip := false
	result, err := s.ResearchAttendees(context.Background(), ResearchRequest{
		Attendees:    []Attendee{{Name: "Sam Roe"}},
		CheckHubSpot: &skip,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.HubSpotFound)
}

func TestResearchAttendees_NoAttendees(t *testing.T) {
	s, _ := newTestService()
	_, err := s.ResearchAttendees(context.Background(), ResearchRequest{TargetCompany: "Acme"})
	var invalid *InvalidRequestError
	assert.ErrorAs(t, err, &invalid)
}

func researchedJane() ResearchedAttendee {
	return ResearchedAttendee{
		Attendee:        Attendee{Name: "Jane Doe", Title: "VP Growth", Company: "Acme", Email: "jane@acme.com"},
		LinkedInURL:     "https://www.linkedin.com/in/janedoe",
		LinkedInSnippet: "Growth leader",
		HubSpotContact:  &hubspot.Contact{ID: "1"},
	}
}

func TestResearchAttendees_CanceledContext(t *testing.T) {
	s, deps := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ResearchAttendees(ctx, ResearchRequest{Attendees: []Attendee{{Name: "Jane Doe"}}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, deps.usage.events)
}

func TestGenerateReport(t *testing.T) {
	s, deps := newTestService()
	deps.searcher.results[`"Acme" company overview Retail`] = []search.Result{
		{Title: "Acme Inc", URL: "https://acme.com", Snippet: "Acme sells anvils."},
	}
	deps.llm.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.System == BDSystemMessage &&
			req.Effort == "medium" &&
			strings.HasPrefix(req.User, DefaultReportPrompt+"\n\nTARGET COMPANY: Acme\nMEETING ATTENDEES: Jane Doe (VP Growth)\nINDUSTRY: Retail\nMEETING CONTEXT: Partnership\n\nRESEARCH INTELLIGENCE:\n## Company Overview Research") &&
			strings.Contains(req.User, "Source: https://acme.com") &&
			strings.Contains(req.User, "**HubSpot Status:** Existing contact found (ID: 1)")
	})).Return("## Executive Summary\n- win", nil)

	result, err := s.GenerateReport(context.Background(), ReportRequest{
		CompanyName:         "Acme",
		Industry:            "Retail",
		MeetingContext:      "Partnership",
		Effort:              "medium",
		ResearchedAttendees: []ResearchedAttendee{researchedJane()},
		Notify:              true,
	})
	require.NoError(t, err)
	deps.llm.AssertExpectations(t)

	assert.Equal(t, "brief-1", result.ID)
	assert.Contains(t, result.ReportHTML, "<h2>Executive Summary</h2>")
	assert.Equal(t, ReportMeta{CompanyName: "Acme", Industry: "Retail", AttendeesCount: 1, ResearchSources: 2, Effort: "medium"}, result.Meta)
	assert.Equal(t, model.BriefKindBD, deps.store.saved[0].Kind)
	assert.Equal(t, []string{model.EventIntelligenceReport}, deps.usage.events)
	assert.Equal(t, []string{"BD intelligence report: Acme"}, deps.notifier.titles)
}

func TestGenerateReport_RequiresCompany(t *testing.T) {
	s, deps := newTestService()
	_, err := s.GenerateReport(context.Background(), ReportRequest{})
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "company_name is required", invalid.Detail)
	deps.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestPreviewPrompt_LegacyAttendees(t *testing.T) {
	s, deps := newTestService()

	preview, err := s.PreviewPrompt(context.Background(), ReportRequest{
		CompanyName: "TechFlow Solutions",
		Prompt:      "Custom prompt",
		Attendees:   []Attendee{{Name: "Sarah Chen", Title: "VP of Growth", Email: "sarah@techflow.com"}},
	})
	require.NoError(t, err)
	deps.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)

	assert.Equal(t, BDSystemMessage, preview.SystemMessage)
	assert.True(t, strings.HasPrefix(preview.UserPrompt, "Custom prompt\n\nTARGET COMPANY: TechFlow Solutions\nMEETING ATTENDEES: Sarah Chen (VP of Growth)"))
	assert.Contains(t, preview.ResearchContext, "### Sarah Chen")
	assert.Contains(t, preview.ResearchContext, "**HubSpot Status:** Not in HubSpot")
	assert.Equal(t, len(preview.SystemMessage)+len(preview.UserPrompt), preview.PromptStats.TotalLength)
	assert.Equal(t, len(preview.ResearchContext), preview.PromptStats.ResearchContextLength)
	assert.Positive(t, preview.PromptStats.EstimatedTokens)
	assert.Empty(t, deps.usage.events)
}

func TestAddToHubSpot(t *testing.T) {
	s, deps := newTestService()

	var req HubSpotAddRequest
	req.Attendee.Name = "Mary Ann Smith"
	req.Attendee.Email = "mary@acme.com"
	req.Attendee.Company = "Acme"
	req.Attendee.LinkedInURL = "https://www.linkedin.com/in/maryann"

	result, err := s.AddToHubSpot(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "555", result.ContactID)
	require.NotNil(t, result.Contact)
	assert.Equal(t, "Mary Ann Smith", result.Contact.FullName())

	require.Len(t, deps.crm.created, 1)
	assert.Equal(t, "Mary Ann", deps.crm.created[0].FirstName)
	assert.Equal(t, "Smith", deps.crm.created[0].LastName)
	assert.Equal(t, "https://www.linkedin.com/in/maryann", deps.crm.created[0].LinkedInURL)
	assert.Equal(t, []string{model.EventHubSpotAdd}, deps.usage.events)
}

func TestAddToHubSpot_Existing(t *testing.T) {
	s, deps := newTestService()
	deps.crm.byName["Sam Roe"] = &hubspot.Contact{ID: "77"}

	var req HubSpotAddRequest
	req.Attendee.Name = "Sam Roe"
	result, err := s.AddToHubSpot(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "77", result.ContactID)
	assert.Equal(t, "Samuel Roe already exists in HubSpot (ID: 77)", result.Message)
	assert.Equal(t, "77", result.Contact.ID)
	assert.Empty(t, deps.crm.created)
}

func TestAddToHubSpot_ReadBackFailureStillSucceeds(t *testing.T) {
	s, deps := newTestService()
	deps.crm.getErr = errors.New("HubSpot error: rate limited")

	var req HubSpotAddRequest
	req.Attendee.Name = "Jo Lee"
	result, err := s.AddToHubSpot(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "555", result.ContactID)
	assert.Nil(t, result.Contact)
}

func TestGenerateReport_TrimsResearchToBudget(t *testing.T) {
	s, deps := newTestService()
	deps.llm.budget = 100

	jane := researchedJane()
	for i := 0; i < 200; i++ {
		jane.BackgroundResearch.BackgroundInfo = append(jane.BackgroundResearch.BackgroundInfo, search.Result{
			Title: fmt.Sprintf("Article %d", i), URL: fmt.Sprintf("https://news.example/%d", i), Snippet: "Jane spoke at a growth conference.",
		})
	}

	preview, err := s.PreviewPrompt(context.Background(), ReportRequest{CompanyName: "Acme", ResearchedAttendees: []ResearchedAttendee{jane}})
	require.NoError(t, err)
	assert.Regexp(t, `^\(\d+ earlier lines omitted\)$`, preview.ResearchContext)
	assert.NotContains(t, preview.UserPrompt, "https://news.example/0")
	deps.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAddToHubSpot_Failures(t *testing.T) {
	s, deps := newTestService()

	_, err := s.AddToHubSpot(context.Background(), HubSpotAddRequest{})
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)

	var req HubSpotAddRequest
	req.Attendee.Name = "Jo Lee"
	deps.crm.createErr = errors.New("HubSpot error: conflict")
	result, err := s.AddToHubSpot(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "HubSpot error: conflict", result.Message)

	deps.crm.configured = false
	result, err = s.AddToHubSpot(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "HubSpot token not configured", result.Message)
}
